// Package resultio persists a finished backtest run's agent history.
// It mirrors the reference implementation's pickle dump of
// {balance, timestamps, price_history, balance_history}: gob is the
// Go-native opaque binary analogue, with a JSON companion writer for
// anyone who wants to inspect a result without decoding gob.
package resultio

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bistbt/internal/backtest"
	"bistbt/internal/lob"
)

// Result is the serialized shape of one backtest run's agent history.
type Result struct {
	Strategy       string
	Balance        backtest.Balance
	Timestamps     []time.Time
	PriceHistory   []lob.PriceTable
	BalanceHistory []backtest.Balance
}

// FromAgent builds a Result from a finished agent's recorded history.
func FromAgent(strategyName string, agent backtest.Agent) Result {
	h := agent.History()
	return Result{
		Strategy:       strategyName,
		Balance:        *agent.Balance(),
		Timestamps:     append([]time.Time(nil), h.Timestamps...),
		PriceHistory:   append([]lob.PriceTable(nil), h.Prices...),
		BalanceHistory: append([]backtest.Balance(nil), h.Balances...),
	}
}

// WriteGob persists r as a timestamped .gob file under dir, creating dir
// if necessary, and returns the path written.
func WriteGob(dir string, r Result, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("resultio: creating result dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.gob", r.Strategy, now.Format("20060102_150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("resultio: creating result file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(r); err != nil {
		return "", fmt.Errorf("resultio: encoding result: %w", err)
	}
	return path, nil
}

// WriteJSON persists r as a timestamped .json file under dir, for humans
// who'd rather not decode gob.
func WriteJSON(dir string, r Result, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("resultio: creating result dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.json", r.Strategy, now.Format("20060102_150405")))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("resultio: creating result file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", fmt.Errorf("resultio: encoding result: %w", err)
	}
	return path, nil
}
