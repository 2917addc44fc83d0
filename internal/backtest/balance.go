package backtest

// Balance is an agent's cash/stock balance sheet. Money may go slightly
// negative only via the per-order cost fee (see Backtest.runAgent); every other
// field is held at or above zero by the accountant.
type Balance struct {
	Money     float64
	HeldMoney float64
	Stock     int64
	HeldStock int64
}

// Clone deep-copies the balance for history sampling.
func (b Balance) Clone() Balance {
	return b
}
