package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

const (
	listRetryAttempts = 3
	listRetryDelay    = 150 * time.Millisecond
)

// TaxonomyService manages categories, income sources and account types.
type TaxonomyService struct {
	store      storage.TaxonomyStore
	cache      Invalidator
	retryDelay time.Duration
}

func NewTaxonomyService(store storage.TaxonomyStore, cache Invalidator) *TaxonomyService {
	return &TaxonomyService{store: store, cache: cache, retryDelay: listRetryDelay}
}

func (s *TaxonomyService) List(ctx context.Context, userID string, kind core.TaxonKind) ([]core.Taxon, error) {
	if !kind.IsValid() {
		return nil, core.Invalid("kind", core.ErrInvalidKind)
	}
	taxa, err := s.store.ListTaxa(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return taxa, nil
}

// ListWithRetry re-polls while the list is empty, since default provisioning
// may still be running right after sign-up. It gives up after a few
// attempts and returns the empty list.
func (s *TaxonomyService) ListWithRetry(ctx context.Context, userID string, kind core.TaxonKind) ([]core.Taxon, error) {
	for attempt := 1; ; attempt++ {
		taxa, err := s.List(ctx, userID, kind)
		if err != nil || len(taxa) > 0 || attempt == listRetryAttempts {
			return taxa, err
		}
		slog.DebugContext(ctx, "Taxonomy empty, polling again",
			"kind", kind, "user_id", userID, "attempt", attempt)
		select {
		case <-ctx.Done():
			return taxa, ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

// Create adds a name after checking it against the user's existing names.
func (s *TaxonomyService) Create(ctx context.Context, userID string, kind core.TaxonKind, name string) (core.Taxon, error) {
	t := core.Taxon{UserID: userID, Kind: kind, Name: core.NormalizeName(name)}
	if err := t.Validate(); err != nil {
		return core.Taxon{}, err
	}
	if t.IsCarryoverSource() {
		return core.Taxon{}, core.Invalid("name", core.ErrReservedName)
	}
	if err := s.checkUnique(ctx, t); err != nil {
		return core.Taxon{}, err
	}

	created, err := s.store.InsertTaxon(ctx, t)
	if errors.Is(err, storage.ErrConflict) {
		return core.Taxon{}, core.Invalid("name", core.ErrDuplicateName)
	}
	if err != nil {
		return core.Taxon{}, fmt.Errorf("create %s: %w", kind, err)
	}
	s.invalidate(userID)
	slog.InfoContext(ctx, "Taxon created", "kind", kind, "user_id", userID, "id", created.ID)
	return created, nil
}

func (s *TaxonomyService) Rename(ctx context.Context, userID string, kind core.TaxonKind, id, name string) (core.Taxon, error) {
	current, err := s.get(ctx, userID, kind, id)
	if err != nil {
		return core.Taxon{}, err
	}
	if current.IsCarryoverSource() {
		return core.Taxon{}, core.Invalid("id", core.ErrReservedName)
	}

	t := current
	t.Name = core.NormalizeName(name)
	if err := t.Validate(); err != nil {
		return core.Taxon{}, err
	}
	if t.IsCarryoverSource() {
		return core.Taxon{}, core.Invalid("name", core.ErrReservedName)
	}
	if err := s.checkUnique(ctx, t); err != nil {
		return core.Taxon{}, err
	}

	updated, err := s.store.UpdateTaxon(ctx, t)
	if errors.Is(err, storage.ErrConflict) {
		return core.Taxon{}, core.Invalid("name", core.ErrDuplicateName)
	}
	if err != nil {
		return core.Taxon{}, fmt.Errorf("rename %s: %w", kind, err)
	}
	s.invalidate(userID)
	return updated, nil
}

func (s *TaxonomyService) Delete(ctx context.Context, userID string, kind core.TaxonKind, id string) error {
	current, err := s.get(ctx, userID, kind, id)
	if err != nil {
		return err
	}
	if current.IsCarryoverSource() {
		return core.Invalid("id", core.ErrReservedName)
	}
	if err := s.store.DeleteTaxon(ctx, userID, kind, id); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	s.invalidate(userID)
	return nil
}

// EnsureCarryoverSource returns the user's reserved carryover source,
// creating it when missing.
func (s *TaxonomyService) EnsureCarryoverSource(ctx context.Context, userID string) (core.Taxon, error) {
	if t, ok, err := s.findCarryoverSource(ctx, userID); err != nil || ok {
		return t, err
	}
	created, err := s.store.InsertTaxon(ctx, core.Taxon{
		UserID: userID,
		Kind:   core.KindIncomeSource,
		Name:   core.CarryoverSourceName,
	})
	if errors.Is(err, storage.ErrConflict) {
		// Created concurrently by another evaluation.
		t, ok, ferr := s.findCarryoverSource(ctx, userID)
		if ferr == nil && ok {
			return t, nil
		}
	}
	if err != nil {
		return core.Taxon{}, fmt.Errorf("create carryover source: %w", err)
	}
	return created, nil
}

// FindCarryoverSource looks up the reserved source without creating it.
func (s *TaxonomyService) FindCarryoverSource(ctx context.Context, userID string) (core.Taxon, bool, error) {
	return s.findCarryoverSource(ctx, userID)
}

func (s *TaxonomyService) findCarryoverSource(ctx context.Context, userID string) (core.Taxon, bool, error) {
	sources, err := s.store.ListTaxa(ctx, userID, core.KindIncomeSource)
	if err != nil {
		return core.Taxon{}, false, fmt.Errorf("list income sources: %w", err)
	}
	for _, t := range sources {
		if t.IsCarryoverSource() {
			return t, true, nil
		}
	}
	return core.Taxon{}, false, nil
}

func (s *TaxonomyService) get(ctx context.Context, userID string, kind core.TaxonKind, id string) (core.Taxon, error) {
	if !kind.IsValid() {
		return core.Taxon{}, core.Invalid("kind", core.ErrInvalidKind)
	}
	t, err := s.store.GetTaxon(ctx, userID, kind, id)
	if err != nil {
		return core.Taxon{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return t, nil
}

func (s *TaxonomyService) checkUnique(ctx context.Context, t core.Taxon) error {
	existing, err := s.store.ListTaxa(ctx, t.UserID, t.Kind)
	if err != nil {
		return fmt.Errorf("list %s: %w", t.Kind, err)
	}
	for _, e := range existing {
		if e.ID != t.ID && core.SameName(e.Name, t.Name) {
			return core.Invalid("name", core.ErrDuplicateName)
		}
	}
	return nil
}

func (s *TaxonomyService) invalidate(userID string) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}
