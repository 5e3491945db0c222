package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"opsdesk/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionRepository never deletes rows; revocation is the only mutation.
type SessionRepository struct {
	db DB
}

func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, refresh_token_hash, device_fingerprint, ip_address, location, user_agent,
	created_at, expires_at, revoked, revoked_at`

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO admin_sessions (
			id, user_id, refresh_token_hash, device_fingerprint, ip_address, location, user_agent, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.RefreshTokenHash,
		session.DeviceFingerprint,
		session.IPAddress,
		session.Location,
		session.UserAgent,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindActiveByRefreshHash(ctx context.Context, refreshHash string) (models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM admin_sessions
		WHERE refresh_token_hash = $1 AND revoked = FALSE`
	return r.scanOne(r.db.QueryRow(ctx, query, refreshHash))
}

// LatestActiveByUser returns the newest non-revoked session, expired or not.
func (r *SessionRepository) LatestActiveByUser(ctx context.Context, userID string) (models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM admin_sessions
		WHERE user_id = $1 AND revoked = FALSE
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanOne(r.db.QueryRow(ctx, query, userID))
}

// RevokeByRefreshHash revokes the live session holding refreshHash and
// returns its owner.
func (r *SessionRepository) RevokeByRefreshHash(ctx context.Context, refreshHash string) (string, error) {
	const query = `
		UPDATE admin_sessions
		SET revoked = TRUE, revoked_at = NOW()
		WHERE refresh_token_hash = $1 AND revoked = FALSE
		RETURNING user_id
	`

	var userID string
	if err := r.db.QueryRow(ctx, query, refreshHash).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("revoke session: %w", err)
	}
	return userID, nil
}

// RevokeByID reports false when the session was already revoked, which lets
// concurrent rotations of one refresh secret agree on a single winner.
func (r *SessionRepository) RevokeByID(ctx context.Context, id string) (bool, error) {
	const query = `
		UPDATE admin_sessions
		SET revoked = TRUE, revoked_at = NOW()
		WHERE id = $1 AND revoked = FALSE
	`

	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("revoke session %s: %w", id, err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *SessionRepository) scanOne(row pgx.Row) (models.Session, error) {
	var session models.Session
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.RefreshTokenHash,
		&session.DeviceFingerprint,
		&session.IPAddress,
		&session.Location,
		&session.UserAgent,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.Revoked,
		&session.RevokedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}
