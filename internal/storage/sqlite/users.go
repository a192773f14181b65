package sqlite

import (
	"context"
	"fmt"
	"strings"

	"kharcha/internal/core"
)

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	u.Email = strings.TrimSpace(u.Email)
	r.stamp(&u.ID, &u.CreatedAt)
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		u.ID, u.Email, u.DisplayName, u.PasswordHash, u.CreatedAt.Format(timeLayout)); err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", mapErr(err))
	}
	return u, nil
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (core.User, error) {
	var (
		u       core.User
		created string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, email, display_name, password_hash, created_at FROM users WHERE "+where, arg).
		Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &created)
	if err != nil {
		return core.User{}, mapErr(err)
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, "id = ?", id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, "email = ?", strings.TrimSpace(email))
}

func (r *Repository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id FROM users ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
