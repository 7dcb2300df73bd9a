// Package sim plays the house rules offline to estimate the return to player.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/game"
	"github.com/jason-s-yu/blackjack/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// progressEvery is how many rounds pass between Progress callbacks and cancellation checks.
const progressEvery = 1000

// Options controls a simulation run.
type Options struct {
	Rounds int
	// Bet per round; 0 uses the table minimum.
	Bet int64
	// Seed makes the run reproducible. 0 seeds from the OS.
	Seed uint64
	// Progress, if set, receives the number of rounds played so far.
	Progress func(done int)
}

// Result summarizes a run. Returns are per unit staked.
type Result struct {
	Rounds      int
	TotalBet    int64
	TotalPayout int64

	Wins     int
	Losses   int
	Pushes   int
	Naturals int
	Busts    int

	RTP    float64
	StdDev float64 // of the per-round return
	CILow  float64 // 95% confidence interval of RTP
	CIHigh float64
}

// Run plays opts.Rounds rounds under rules with the fixed strategy: hit while
// the hand is below rules.PlayerHitBelow, never double.
func Run(ctx context.Context, rules game.Rules, opts Options) (Result, error) {
	if opts.Rounds < 1 {
		return Result{}, errors.New("rounds must be positive")
	}
	if err := rules.Validate(); err != nil {
		return Result{}, err
	}
	bet := opts.Bet
	if bet == 0 {
		bet = rules.MinBet
	}
	if err := rules.CheckBet(bet); err != nil {
		return Result{}, err
	}

	rng := game.NewRand()
	if opts.Seed != 0 {
		rng = rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	}

	res := Result{Rounds: opts.Rounds}
	returns := make([]float64, opts.Rounds)
	player := uuid.New()

	for i := 0; i < opts.Rounds; i++ {
		if i%progressEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if opts.Progress != nil && i > 0 {
				opts.Progress(i)
			}
		}

		g := game.NewBlackjackGame(player, bet, rules, game.NewDeck(rules.Decks, rng))
		if err := playRound(g); err != nil {
			return Result{}, fmt.Errorf("round %d: %w", i+1, err)
		}

		payout := g.Payout()
		res.TotalBet += g.Bet
		res.TotalPayout += payout
		returns[i] = float64(payout) / float64(g.Bet)

		switch g.Status {
		case models.StatusPlayerWin:
			res.Wins++
		case models.StatusDealerWin:
			res.Losses++
		case models.StatusPush:
			res.Pushes++
		}
		if g.Natural {
			res.Naturals++
		}
		if g.Player.IsBust() {
			res.Busts++
		}
	}
	if opts.Progress != nil {
		opts.Progress(opts.Rounds)
	}

	mean, std := stat.MeanStdDev(returns, nil)
	if math.IsNaN(std) {
		std = 0
	}
	res.RTP = float64(res.TotalPayout) / float64(res.TotalBet)
	res.StdDev = std
	half := distuv.UnitNormal.Quantile(0.975) * std / math.Sqrt(float64(opts.Rounds))
	res.CILow, res.CIHigh = mean-half, mean+half
	return res, nil
}

func playRound(g *game.BlackjackGame) error {
	if err := g.Deal(); err != nil {
		return err
	}
	for g.Status == models.StatusActive && g.Player.Value() < g.Rules.PlayerHitBelow {
		if err := g.Hit(); err != nil {
			return err
		}
	}
	if g.Status == models.StatusActive {
		return g.Stand()
	}
	return nil
}

// Report writes a human-readable summary with localized number grouping.
func (r Result) Report(w io.Writer, lang language.Tag) error {
	p := message.NewPrinter(lang)
	pct := func(n int) float64 { return 100 * float64(n) / float64(r.Rounds) }
	_, err := p.Fprintf(w,
		"Rounds:       %d\n"+
			"Total bet:    %d\n"+
			"Total payout: %d\n"+
			"Wins:         %d (%.2f%%)\n"+
			"Losses:       %d (%.2f%%)\n"+
			"Pushes:       %d (%.2f%%)\n"+
			"Naturals:     %d\n"+
			"Player busts: %d\n"+
			"RTP:          %.4f%%\n"+
			"Std dev:      %.4f\n"+
			"95%% CI:       [%.4f%%, %.4f%%]\n",
		r.Rounds, r.TotalBet, r.TotalPayout,
		r.Wins, pct(r.Wins),
		r.Losses, pct(r.Losses),
		r.Pushes, pct(r.Pushes),
		r.Naturals, r.Busts,
		100*r.RTP, r.StdDev, 100*r.CILow, 100*r.CIHigh,
	)
	return err
}
