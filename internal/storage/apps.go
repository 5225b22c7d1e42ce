package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/beaconlabs/beacon/internal/apps"
)

const uniqueViolation = "23505"

// AppStore implements apps.Store on Postgres.
type AppStore struct {
	db     *DB
	logger zerolog.Logger
}

// NewAppStore creates a Postgres-backed client app store.
func NewAppStore(db *DB, logger zerolog.Logger) *AppStore {
	return &AppStore{db: db, logger: logger}
}

const appColumns = "id, owner_id, name, api_key, is_revoked, expires_at, created_at, updated_at"

func scanApp(row pgx.Row) (*apps.ClientApp, error) {
	var app apps.ClientApp
	err := row.Scan(&app.ID, &app.OwnerID, &app.Name, &app.APIKey,
		&app.IsRevoked, &app.ExpiresAt, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *AppStore) Create(ctx context.Context, ownerID, name string, expiresAt *time.Time) (*apps.ClientApp, error) {
	// The unique index on api_key is the collision guard; one retry covers
	// the astronomically unlikely case.
	for attempt := 0; ; attempt++ {
		key, err := apps.NewAPIKey()
		if err != nil {
			return nil, err
		}

		row := s.db.Pool.QueryRow(ctx, `
INSERT INTO client_apps (id, owner_id, name, api_key, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+appColumns,
			uuid.NewString(), ownerID, name, key, expiresAt)

		app, err := scanApp(row)
		if err == nil {
			s.logger.Debug().Str("app_id", app.ID).Str("owner_id", ownerID).Msg("registered client app")
			return app, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && attempt == 0 {
			s.logger.Warn().Msg("api key collision, regenerating")
			continue
		}
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apps.ErrKeyConflict
		}
		return nil, fmt.Errorf("insert client app: %w", err)
	}
}

func (s *AppStore) GetByKey(ctx context.Context, apiKey string) (*apps.ClientApp, error) {
	row := s.db.Pool.QueryRow(ctx,
		"SELECT "+appColumns+" FROM client_apps WHERE api_key = $1", apiKey)
	app, err := scanApp(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apps.ErrNotFound
		}
		return nil, fmt.Errorf("get client app by key: %w", err)
	}
	return app, nil
}

func (s *AppStore) ListActive(ctx context.Context, ownerID string) ([]*apps.ClientApp, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT `+appColumns+`
FROM client_apps
WHERE owner_id = $1 AND NOT is_revoked
ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list client apps: %w", err)
	}
	defer rows.Close()

	out := make([]*apps.ClientApp, 0)
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client app: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (s *AppStore) Revoke(ctx context.Context, ownerID, appID string) error {
	tag, err := s.db.Pool.Exec(ctx, `
UPDATE client_apps SET is_revoked = TRUE, updated_at = now()
WHERE id = $1 AND owner_id = $2`, appID, ownerID)
	if err != nil {
		return fmt.Errorf("revoke client app: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apps.ErrNotFound
	}
	s.logger.Debug().Str("app_id", appID).Msg("revoked client app")
	return nil
}

func (s *AppStore) Regenerate(ctx context.Context, ownerID, appID string) (*apps.ClientApp, error) {
	key, err := apps.NewAPIKey()
	if err != nil {
		return nil, err
	}

	row := s.db.Pool.QueryRow(ctx, `
UPDATE client_apps SET api_key = $1, updated_at = now()
WHERE id = $2 AND owner_id = $3
RETURNING `+appColumns, key, appID, ownerID)

	app, err := scanApp(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apps.ErrNotFound
		}
		return nil, fmt.Errorf("regenerate api key: %w", err)
	}
	s.logger.Debug().Str("app_id", appID).Msg("regenerated api key")
	return app, nil
}
