package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"opsdesk/internal/models"
)

var (
	ErrShareLinkNotFound = errors.New("share link not found")
	// ErrShareLinkUnavailable means a conditional use was refused because the
	// row no longer satisfied the guard; callers re-read to learn why.
	ErrShareLinkUnavailable = errors.New("share link unavailable")
)

type ShareLinkRepository struct {
	db DB
}

func NewShareLinkRepository(db DB) *ShareLinkRepository {
	return &ShareLinkRepository{db: db}
}

const shareLinkColumns = `id, token_hash, label, role, allowed_areas, allowed_modules, scope, read_only,
	device_binding, device_fingerprint, max_uses, use_count, expires_at, revoked, created_by, created_at, last_used_at`

func (r *ShareLinkRepository) Create(ctx context.Context, link models.ShareLink) error {
	const query = `
		INSERT INTO share_links (
			id, token_hash, label, role, allowed_areas, allowed_modules, scope, read_only,
			device_binding, max_uses, expires_at, created_by, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
	`

	_, err := r.db.Exec(ctx, query,
		link.ID,
		link.TokenHash,
		link.Label,
		string(link.Role),
		link.AllowedAreas,
		link.AllowedModules,
		[]byte(link.Scope),
		link.ReadOnly,
		link.DeviceBinding,
		link.MaxUses,
		link.ExpiresAt,
		link.CreatedBy,
		link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert share link: %w", err)
	}
	return nil
}

func (r *ShareLinkRepository) FindActiveByTokenHash(ctx context.Context, tokenHash string) (models.ShareLink, error) {
	query := `SELECT ` + shareLinkColumns + `
		FROM share_links
		WHERE token_hash = $1 AND revoked = FALSE`
	return scanShareLink(r.db.QueryRow(ctx, query, tokenHash))
}

func (r *ShareLinkRepository) GetByID(ctx context.Context, id string) (models.ShareLink, error) {
	query := `SELECT ` + shareLinkColumns + ` FROM share_links WHERE id = $1`
	return scanShareLink(r.db.QueryRow(ctx, query, id))
}

// ConsumeUse records one successful use in a single conditional update. The
// WHERE clause repeats every admission check so two racing requests cannot
// both take the last use or bind different devices.
func (r *ShareLinkRepository) ConsumeUse(ctx context.Context, id, device string, at time.Time) (models.ShareLink, error) {
	query := `
		UPDATE share_links
		SET use_count = use_count + 1,
		    last_used_at = $3,
		    device_fingerprint = CASE
		        WHEN device_binding AND device_fingerprint IS NULL THEN NULLIF($2, '')
		        ELSE device_fingerprint
		    END
		WHERE id = $1
		  AND revoked = FALSE
		  AND expires_at > $3
		  AND (max_uses IS NULL OR use_count < max_uses)
		  AND (NOT device_binding OR device_fingerprint IS NULL OR device_fingerprint = $2)
		RETURNING ` + shareLinkColumns

	link, err := scanShareLink(r.db.QueryRow(ctx, query, id, device, at))
	if errors.Is(err, ErrShareLinkNotFound) {
		return models.ShareLink{}, ErrShareLinkUnavailable
	}
	return link, err
}

func (r *ShareLinkRepository) Revoke(ctx context.Context, id string) error {
	const query = `UPDATE share_links SET revoked = TRUE WHERE id = $1`

	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("revoke share link: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrShareLinkNotFound
	}
	return nil
}

func (r *ShareLinkRepository) List(ctx context.Context) ([]models.ShareLink, error) {
	query := `SELECT ` + shareLinkColumns + ` FROM share_links ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	defer rows.Close()

	links := make([]models.ShareLink, 0)
	for rows.Next() {
		link, err := scanShareLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	return links, nil
}

func scanShareLink(row pgx.Row) (models.ShareLink, error) {
	var (
		link  models.ShareLink
		role  string
		scope []byte
	)
	if err := row.Scan(
		&link.ID,
		&link.TokenHash,
		&link.Label,
		&role,
		&link.AllowedAreas,
		&link.AllowedModules,
		&scope,
		&link.ReadOnly,
		&link.DeviceBinding,
		&link.DeviceFingerprint,
		&link.MaxUses,
		&link.UseCount,
		&link.ExpiresAt,
		&link.Revoked,
		&link.CreatedBy,
		&link.CreatedAt,
		&link.LastUsedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ShareLink{}, ErrShareLinkNotFound
		}
		return models.ShareLink{}, fmt.Errorf("scan share link: %w", err)
	}
	link.Role = models.ShareRole(role)
	if len(scope) > 0 {
		link.Scope = json.RawMessage(scope)
	}
	return link, nil
}
