package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/core"
)

// UserLister enumerates every known user.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// CarryoverRunner evaluates the current month's carryover for every user,
// so balances move even when nobody opens the dashboard.
type CarryoverRunner struct {
	users     UserLister
	carryover *CarryoverService
}

func NewCarryoverRunner(users UserLister, carryover *CarryoverService) *CarryoverRunner {
	return &CarryoverRunner{users: users, carryover: carryover}
}

// ProcessAll runs one pass for the month containing now and returns how
// many users received carryover rows. Per-user failures are logged and the
// pass continues.
func (r *CarryoverRunner) ProcessAll(ctx context.Context, now time.Time) (int, error) {
	if r.users == nil || r.carryover == nil {
		return 0, fmt.Errorf("carryover runner not properly initialized")
	}
	ids, err := r.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users: %w", err)
	}

	p := core.PeriodOf(now)
	slog.InfoContext(ctx, "Processing carryover", "users", len(ids), "period", p.Key())

	applied := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		res, err := r.carryover.Evaluate(ctx, id, p)
		if err != nil {
			slog.ErrorContext(ctx, "Carryover evaluation failed",
				"user_id", id,
				"period", p.Key(),
				"error", err)
			continue
		}
		if res.Inserted > 0 {
			applied++
		}
	}

	slog.InfoContext(ctx, "Carryover processing complete",
		"applied", applied,
		"total_checked", len(ids))
	return applied, nil
}

// Run calls ProcessAll immediately and then every interval until ctx ends.
func (r *CarryoverRunner) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := r.ProcessAll(ctx, time.Now()); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Carryover pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
