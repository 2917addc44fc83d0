package strategy

import (
	"time"

	"bistbt/internal/backtest"
	"bistbt/internal/lob"
)

// dummyAgent never trades. It exists as a baseline for comparing other
// strategies' P&L against doing nothing, and as the result-output branch
// that triggers the LOB snapshot CSV export instead of a result file.
type dummyAgent struct {
	backtest.BaseAgent
}

func newDummyAgent(base backtest.BaseAgent, _ Options) backtest.Agent {
	return &dummyAgent{BaseAgent: base}
}

func (a *dummyAgent) Strategy(_ lob.Snapshot, _ time.Duration) ([]lob.Order, error) {
	return nil, nil
}
