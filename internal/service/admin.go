package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/starswipe/internal/apperror"
	"github.com/sakif/starswipe/internal/model"
	"github.com/sakif/starswipe/internal/repository"
)

const (
	// FlaggedTrustThreshold puts a user in the moderation queue.
	FlaggedTrustThreshold = 0.7

	DefaultAdminListLimit = 50
	MaxAdminListLimit     = 200
)

// BlockStatus is the result of a block toggle.
type BlockStatus struct {
	UserID    string `json:"userId"`
	IsBlocked bool   `json:"isBlocked"`
}

// TrustStatus is the result of a trust reset.
type TrustStatus struct {
	UserID     string  `json:"userId"`
	TrustScore float64 `json:"trustScore"`
}

// AdminService holds the moderation actions. Callers are expected to have
// checked the ADMIN role already.
type AdminService struct {
	store       repository.Store
	leaderboard *LeaderboardService
	logger      *slog.Logger
}

func NewAdminService(store repository.Store, leaderboard *LeaderboardService, logger *slog.Logger) *AdminService {
	return &AdminService{store: store, leaderboard: leaderboard, logger: logger}
}

// ToggleBlock flips the target's block flag. Admins cannot be blocked.
// A blocked user leaves the leaderboard index immediately; unblocking puts
// the stored score back.
func (s *AdminService) ToggleBlock(ctx context.Context, actorID, targetID string) (*BlockStatus, error) {
	var target *model.User
	err := s.store.WithTx(ctx, func(tx repository.Queries) error {
		var err error
		target, err = tx.GetUserByID(ctx, targetID)
		if err != nil {
			return err
		}
		if target.IsAdmin() {
			return apperror.Forbidden("cannot block an admin")
		}
		target.IsBlocked = !target.IsBlocked
		return tx.SetBlocked(ctx, targetID, target.IsBlocked)
	})
	if err != nil {
		return nil, err
	}

	if target.IsBlocked {
		s.leaderboard.Remove(ctx, targetID)
	} else if target.LeaderboardScore > 0 {
		s.leaderboard.Record(ctx, targetID, target.LeaderboardScore)
	}

	s.logger.Info("user block toggled",
		slog.String("adminId", actorID),
		slog.String("userId", targetID),
		slog.Bool("isBlocked", target.IsBlocked),
	)
	return &BlockStatus{UserID: targetID, IsBlocked: target.IsBlocked}, nil
}

// ResetTrust restores the target's trust to 1.0.
func (s *AdminService) ResetTrust(ctx context.Context, actorID, targetID string) (*TrustStatus, error) {
	if err := s.store.ResetTrust(ctx, targetID); err != nil {
		return nil, err
	}
	s.logger.Info("user trust reset", slog.String("adminId", actorID), slog.String("userId", targetID))
	return &TrustStatus{UserID: targetID, TrustScore: model.MaxTrustScore}, nil
}

func (s *AdminService) ListAbuseLogs(ctx context.Context, limit, offset int) ([]model.AbuseLog, error) {
	if offset < 0 {
		offset = 0
	}
	logs, err := s.store.ListAbuseLogs(ctx, repository.ListOptions{
		Limit:  clampLimit(limit, DefaultAdminListLimit, MaxAdminListLimit),
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("service/admin: listing abuse logs: %w", err)
	}
	return logs, nil
}

// ListFlaggedUsers returns users with trust below 0.7 or a block.
func (s *AdminService) ListFlaggedUsers(ctx context.Context, limit int) ([]model.FlaggedUser, error) {
	users, err := s.store.ListFlaggedUsers(ctx, FlaggedTrustThreshold, clampLimit(limit, DefaultAdminListLimit, MaxAdminListLimit))
	if err != nil {
		return nil, fmt.Errorf("service/admin: listing flagged users: %w", err)
	}
	return users, nil
}

// IsAdmin reports whether userID holds the ADMIN role.
func (s *AdminService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.IsAdmin() && !user.IsBlocked, nil
}

// SetRole grants or revokes ADMIN by username. It backs the operator CLI;
// there is no HTTP route for it, so the first admin can only be made from a
// shell with database access.
func (s *AdminService) SetRole(ctx context.Context, username string, role model.Role) (*model.User, error) {
	if role != model.RoleAdmin && role != model.RoleUser {
		return nil, apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", role))
	}
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetRole(ctx, user.ID, role); err != nil {
		return nil, err
	}
	user.Role = role
	s.logger.Info("user role changed", slog.String("userId", user.ID), slog.String("role", string(role)))
	return user, nil
}
