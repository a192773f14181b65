package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"kharcha/internal/auth"
	"kharcha/internal/core"
	"kharcha/internal/storage"
)

// Defaults lists the names provisioned for every new user.
type Defaults struct {
	AccountTypes  []string
	Categories    []string
	IncomeSources []string
}

func BuiltinDefaults() Defaults {
	return Defaults{
		AccountTypes:  []string{"Cash", "Bank"},
		Categories:    []string{"Food", "Transport", "Bills", "Shopping", "Other"},
		IncomeSources: []string{"Salary", "Other"},
	}
}

// LoadDefaults reads seed_account_types.txt, seed_categories.txt and
// seed_income_sources.txt from dir, one name per line. Missing or empty
// files keep the builtin list.
func LoadDefaults(dir string) Defaults {
	d := BuiltinDefaults()
	if dir == "" {
		return d
	}
	if v := readLines(filepath.Join(dir, "seed_account_types.txt")); len(v) > 0 {
		d.AccountTypes = v
	}
	if v := readLines(filepath.Join(dir, "seed_categories.txt")); len(v) > 0 {
		d.Categories = v
	}
	if v := readLines(filepath.Join(dir, "seed_income_sources.txt")); len(v) > 0 {
		d.IncomeSources = v
	}
	return d
}

// Provisioner seeds a new user's taxonomy when they sign up.
type Provisioner struct {
	store    storage.TaxonomyStore
	defaults Defaults
}

func NewProvisioner(store storage.TaxonomyStore, d Defaults) *Provisioner {
	return &Provisioner{store: store, defaults: d}
}

// Listen is an auth.Listener reacting to sign-up events only.
func (p *Provisioner) Listen(ctx context.Context, ev auth.AuthEvent) error {
	if ev.Type != auth.EventSignedUp {
		return nil
	}
	return p.Provision(ctx, ev.User.ID)
}

// Provision inserts every default name the user does not have yet.
func (p *Provisioner) Provision(ctx context.Context, userID string) error {
	var errs []error
	created := 0
	for _, set := range []struct {
		kind  core.TaxonKind
		names []string
	}{
		{core.KindAccountType, p.defaults.AccountTypes},
		{core.KindCategory, p.defaults.Categories},
		{core.KindIncomeSource, p.defaults.IncomeSources},
	} {
		for _, name := range set.names {
			_, err := p.store.InsertTaxon(ctx, core.Taxon{UserID: userID, Kind: set.kind, Name: name})
			switch {
			case err == nil:
				created++
			case errors.Is(err, storage.ErrConflict):
			default:
				errs = append(errs, fmt.Errorf("%s %q: %w", set.kind, name, err))
			}
		}
	}
	slog.InfoContext(ctx, "Default taxonomy provisioned", "user_id", userID, "created", created)
	if len(errs) > 0 {
		return fmt.Errorf("provision defaults: %w", errors.Join(errs...))
	}
	return nil
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe keeps the first spelling of each name, comparing the way
// uniqueness is enforced.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = core.NormalizeName(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
