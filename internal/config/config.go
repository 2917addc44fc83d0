// Package config defines the runner's command-line surface: flat
// cmd/server-style flag handling using spf13/pflag for GNU-style long
// flags and a repeatable --options k=v slice, in place of the reference
// implementation's argparse.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"bistbt/internal/strategy"
)

// Config is the runner configuration forwarded to the backtest core.
// Options is a free-form key=value map routed to the
// chosen strategy's constructor; unknown or uncoercible keys are
// silently ignored there, not here.
type Config struct {
	Strategy     string
	Filepath     string
	Latency      time.Duration
	OrderCost    float64
	InitialMoney float64
	InitialStock int64
	Options      strategy.Options
	ResultDir    string
}

// Parse builds a Config from args (typically os.Args[1:]). Latency is
// given in seconds on the command line and clamped to zero if negative.
func Parse(progname string, args []string) (Config, error) {
	fs := pflag.NewFlagSet(progname, pflag.ContinueOnError)

	strategyName := fs.String("strategy", "", "name/key of the strategy to use for backtesting")
	filepath := fs.String("filepath", "", "path to the historical order data file")
	latencySecs := fs.Float64("latency", 0.0, "one-way latency between the network and BIST, in seconds")
	orderCost := fs.Float64("order-cost", 0.0, "cost charged per submitted order")
	initialMoney := fs.Float64("initial-money", 10000.0, "initial cash balance of the agent")
	initialStock := fs.Int64("initial-stock", 0, "initial stock balance of the agent")
	options := fs.StringArray("options", nil, "key=value option forwarded to the strategy constructor, repeatable")
	resultDir := fs.String("result-dir", "results", "directory results are written to for non-dummy strategies")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *strategyName == "" {
		return Config{}, fmt.Errorf("config: --strategy is required")
	}
	if *filepath == "" {
		return Config{}, fmt.Errorf("config: --filepath is required")
	}

	latency := time.Duration(*latencySecs * float64(time.Second))
	if latency < 0 {
		latency = 0
	}

	return Config{
		Strategy:     *strategyName,
		Filepath:     *filepath,
		Latency:      latency,
		OrderCost:    *orderCost,
		InitialMoney: *initialMoney,
		InitialStock: *initialStock,
		Options:      parseOptions(*options),
		ResultDir:    *resultDir,
	}, nil
}

// parseOptions turns "k=v" strings into a map, silently dropping any
// entry that contains no "=". The key is everything before the first "="
// and the value everything after it, so a value may itself contain "=".
func parseOptions(raw []string) strategy.Options {
	opts := make(strategy.Options, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		opts[parts[0]] = parts[1]
	}
	return opts
}
