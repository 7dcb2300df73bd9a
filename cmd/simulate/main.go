// cmd/simulate/main.go plays the configured table rules offline and prints the RTP.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/jason-s-yu/blackjack/internal/config"
	"github.com/jason-s-yu/blackjack/internal/sim"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

func main() {
	var (
		rounds    int
		bet       int64
		seed      uint64
		rulesFile string
		quiet     bool
	)
	flag.IntVar(&rounds, "rounds", 1_000_000, "number of rounds to play")
	flag.Int64Var(&bet, "bet", 0, "bet per round (0 = table minimum)")
	flag.Uint64Var(&seed, "seed", 0, "shuffle seed for reproducible runs (0 = random)")
	flag.StringVar(&rulesFile, "rules", os.Getenv("RULES_FILE"), "path to a rules YAML file")
	flag.BoolVar(&quiet, "quiet", false, "hide the progress bar")
	flag.Parse()

	rules, err := config.LoadRules(rulesFile)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load rules")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var bar *pb.ProgressBar
	opts := sim.Options{Rounds: rounds, Bet: bet, Seed: seed}
	if !quiet {
		bar = pb.StartNew(rounds)
		opts.Progress = func(done int) { bar.SetCurrent(int64(done)) }
	}

	start := time.Now()
	res, err := sim.Run(ctx, rules, opts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		logrus.WithError(err).Fatal("simulation failed")
	}

	if err := res.Report(os.Stdout, language.English); err != nil {
		logrus.WithError(err).Fatal("failed to write report")
	}
	logrus.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("simulation complete")
}
