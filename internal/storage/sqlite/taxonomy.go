package sqlite

import (
	"context"
	"fmt"

	"kharcha/internal/core"
	"kharcha/internal/storage"
)

func tableFor(kind core.TaxonKind) (string, error) {
	switch kind {
	case core.KindCategory:
		return "categories", nil
	case core.KindIncomeSource:
		return "income_sources", nil
	case core.KindAccountType:
		return "account_types", nil
	default:
		return "", core.Invalid("kind", core.ErrInvalidKind)
	}
}

func (r *Repository) ListTaxa(ctx context.Context, userID string, kind core.TaxonKind) ([]core.Taxon, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, user_id, name, created_at FROM "+table+" WHERE user_id = ? ORDER BY created_at, name", userID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := []core.Taxon{}
	for rows.Next() {
		t := core.Taxon{Kind: kind}
		var created string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &created); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) GetTaxon(ctx context.Context, userID string, kind core.TaxonKind, id string) (core.Taxon, error) {
	table, err := tableFor(kind)
	if err != nil {
		return core.Taxon{}, err
	}
	t := core.Taxon{Kind: kind}
	var created string
	err = r.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, created_at FROM "+table+" WHERE user_id = ? AND id = ?", userID, id).
		Scan(&t.ID, &t.UserID, &t.Name, &created)
	if err != nil {
		return core.Taxon{}, mapErr(err)
	}
	t.CreatedAt = parseTime(created)
	return t, nil
}

func (r *Repository) InsertTaxon(ctx context.Context, t core.Taxon) (core.Taxon, error) {
	table, err := tableFor(t.Kind)
	if err != nil {
		return core.Taxon{}, err
	}
	t.Name = core.NormalizeName(t.Name)
	r.stamp(&t.ID, &t.CreatedAt)
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO "+table+" (id, user_id, name, created_at) VALUES (?, ?, ?, ?)",
		t.ID, t.UserID, t.Name, t.CreatedAt.Format(timeLayout)); err != nil {
		return core.Taxon{}, fmt.Errorf("insert %s %q: %w", table, t.Name, mapErr(err))
	}
	return t, nil
}

func (r *Repository) UpdateTaxon(ctx context.Context, t core.Taxon) (core.Taxon, error) {
	table, err := tableFor(t.Kind)
	if err != nil {
		return core.Taxon{}, err
	}
	t.Name = core.NormalizeName(t.Name)
	res, err := r.db.ExecContext(ctx,
		"UPDATE "+table+" SET name = ? WHERE user_id = ? AND id = ?", t.Name, t.UserID, t.ID)
	if err != nil {
		return core.Taxon{}, fmt.Errorf("rename %s: %w", table, mapErr(err))
	}
	if err := checkAffected(res); err != nil {
		return core.Taxon{}, err
	}
	return r.GetTaxon(ctx, t.UserID, t.Kind, t.ID)
}

func (r *Repository) DeleteTaxon(ctx context.Context, userID string, kind core.TaxonKind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return checkAffected(res)
}

var _ storage.TaxonomyStore = (*Repository)(nil)
