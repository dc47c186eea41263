package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlop-ai/ingest/apierr"
)

// Pool sizing and the per-lookup budget. A lookup that cannot acquire a
// connection within the timeout fails the request rather than queueing.
const (
	maxConns       = 5
	acquireTimeout = 3 * time.Second
)

// The column names are quoted because the upstream schema uses camelCase
// identifiers.
const getAPIKeyQuery = `
	SELECT id, "organizationId", "key",
	       "expiresAt"::timestamptz, "lastUsed"::timestamptz,
	       "createdAt"::timestamptz
	FROM "api_key"
	WHERE "key" = $1`

// DB resolves API keys against the tenant database.
type DB struct {
	pool *pgxpool.Pool
}

// Connect opens the auth database pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, apierr.Newf(apierr.ConfigurationError, "invalid database URL: %v", err)
	}
	cfg.MaxConns = maxConns
	cfg.ConnConfig.ConnectTimeout = acquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apierr.Newf(apierr.DatabaseError, "failed to connect to database: %v", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, apierr.Newf(apierr.DatabaseError, "failed to connect to database: %v", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// TenantByAPIKey hashes token, looks it up in the api_key table, checks
// expiry, and returns the owning tenant ID.
func (db *DB) TenantByAPIKey(ctx context.Context, token string) (string, error) {
	hashed := HashAPIKey(token)

	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	var (
		id, organizationID, key string
		expiresAt, lastUsed     *time.Time
		createdAt               time.Time
	)
	err := db.pool.QueryRow(ctx, getAPIKeyQuery, hashed).
		Scan(&id, &organizationID, &key, &expiresAt, &lastUsed, &createdAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "", apierr.New(apierr.InvalidToken, "Invalid API key")
	case errors.Is(err, context.DeadlineExceeded):
		return "", apierr.New(apierr.DatabaseError, "Timed out validating API key")
	case err != nil:
		log.Printf("database error while fetching API key: %v", err)
		return "", apierr.New(apierr.DatabaseError, "Failed to validate API key")
	}

	if expiresAt != nil && expiresAt.Before(time.Now()) {
		log.Printf("expired API key %s for tenant %s (expired %s)", id, organizationID, expiresAt)
		return "", apierr.New(apierr.TokenExpired, "API key has expired")
	}
	return organizationID, nil
}
