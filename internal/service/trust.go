package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
)

// Abuse log reasons and severities.
const (
	ReasonHighVelocity   = "high swipe velocity"
	SeverityHighVelocity = 0.2

	ReasonStreakFarming   = "automated abuse sweep: streak without contribution"
	SeverityStreakFarming = 0.1
)

// Sweep heuristic: a long streak with nothing to show for it.
const (
	sweepMinStreak  = 10
	sweepTrustAbove = 0.5
	sweepBatchSize  = 50
)

// penalize decays trust and appends the matching audit row on q. Callers
// run it inside a transaction so the two never come apart.
func penalize(ctx context.Context, q repository.Queries, userID, reason string, severity float64) (float64, error) {
	trust, err := q.DecayTrust(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("decaying trust: %w", err)
	}
	if err := q.InsertAbuseLog(ctx, &model.AbuseLog{UserID: userID, Reason: reason, Severity: severity}); err != nil {
		return 0, fmt.Errorf("writing abuse log: %w", err)
	}
	return trust, nil
}

// TrustService runs the periodic anomaly sweep.
type TrustService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewTrustService(store repository.Store, logger *slog.Logger) *TrustService {
	return &TrustService{store: store, logger: logger}
}

// SweepAnomalies decays trust for up to 50 accounts that look like streak
// farmers. Each user gets its own transaction; one failure is logged and
// the sweep moves on.
//
// Decayed users drop out of the candidate query once trust falls to 0.5, so
// re-running the sweep converges.
func (s *TrustService) SweepAnomalies(ctx context.Context) (int, error) {
	candidates, err := s.store.ListAbuseCandidates(ctx, sweepMinStreak, sweepTrustAbove, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("service/trust: listing candidates: %w", err)
	}

	flagged := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return flagged, err
		}

		var trust float64
		err := s.store.WithTx(ctx, func(tx repository.Queries) error {
			var err error
			trust, err = penalize(ctx, tx, c.ID, ReasonStreakFarming, SeverityStreakFarming)
			return err
		})
		if err != nil {
			s.logger.Error("abuse sweep: penalizing user failed",
				slog.String("userId", c.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		flagged++
		s.logger.Info("abuse sweep flagged user",
			slog.String("userId", c.ID),
			slog.String("username", c.Username),
			slog.Int64("streakCount", c.StreakCount),
			slog.Float64("trustScore", trust),
		)
	}
	return flagged, nil
}
