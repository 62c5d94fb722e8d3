package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"room-reservation-api/internal/model"
)

const (
	insertRefreshToken = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at) VALUES ($1, $2, $3, $4)`
	selectRefreshToken = `SELECT id, user_id, token_hash, expires_at, revoked, replaced_by, created_at
		FROM refresh_tokens WHERE token_hash = $1`
)

// CreateRefreshToken stores the hash of a freshly issued refresh token and
// returns the row id.
func (s *Store) CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (string, error) {
	id := uuid.NewString()
	if _, err := s.pool.Exec(ctx, insertRefreshToken, id, userID, tokenHash, expiresAt); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) RefreshTokenByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	var rt model.RefreshToken
	row := s.pool.QueryRow(ctx, selectRefreshToken, tokenHash)
	if err := row.Scan(&rt.ID, &rt.UserID, &rt.TokenHash, &rt.ExpiresAt, &rt.Revoked, &rt.ReplacedBy, &rt.CreatedAt); err != nil {
		return nil, mapErr(err, ErrNotFound)
	}
	return &rt, nil
}

// RotateRefreshToken marks oldID as replaced by newID and stores the new hash
// atomically. A token that is already revoked yields ErrNotFound, so two
// concurrent refreshes with the same token cannot both succeed.
func (s *Store) RotateRefreshToken(ctx context.Context, oldID, newID, userID, newHash string, newExpiry time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked = TRUE, replaced_by = $2 WHERE id = $1 AND NOT revoked`,
			oldID, newID,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, insertRefreshToken, newID, userID, newHash, newExpiry)
		return err
	})
}

// RevokeAllRefreshTokens ends every session of a user: on logout, account
// deletion, or when a rotated token is presented again.
func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`, userID)
	return err
}

// PurgeRefreshTokens deletes tokens that expired before the cutoff. Revoked
// rows are kept until then so reuse of a rotated token is still detected.
func (s *Store) PurgeRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
