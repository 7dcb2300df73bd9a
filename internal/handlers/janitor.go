package handlers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RunJanitor stands every round idle longer than maxIdle and settles it, so a
// bet is never left hanging. It returns when ctx is done.
func (s *GameServer) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweepIdle(ctx, now, maxIdle)
		}
	}
}

// sweepIdle returns the number of rounds it closed.
func (s *GameServer) sweepIdle(ctx context.Context, now time.Time, maxIdle time.Duration) int {
	closed := 0
	for _, g := range s.Games.Idle(maxIdle, now) {
		g.Mu.Lock()
		if !g.Status.Finished() {
			if err := g.Stand(); err != nil {
				s.Logger.WithError(err).WithField("game_id", g.ID).Warn("janitor could not stand idle round")
			} else {
				g.Message = "Round timed out and was stood automatically. " + g.Message
			}
		}
		if err := s.settleLocked(ctx, g); err != nil {
			s.Logger.WithError(err).WithField("game_id", g.ID).Warn("janitor settlement failed, will retry")
		} else if g.Settled {
			closed++
			s.Logger.WithFields(logrus.Fields{
				"game_id": g.ID,
				"user_id": g.UserID,
				"status":  g.Status,
			}).Info("idle round closed")
		}
		g.Mu.Unlock()
	}
	return closed
}
