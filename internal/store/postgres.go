package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"tripwise-backend/internal/db"
	"tripwise-backend/internal/settings"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/user"
)

// uniqueViolation is the PostgreSQL error code for a duplicate key.
const uniqueViolation = "23505"

// PostgresStore keeps admin config revisions, trips and users in
// PostgreSQL.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(database *db.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

// LatestAdminConfig returns the newest revision, nil if there is none.
func (ps *PostgresStore) LatestAdminConfig(ctx context.Context) (*settings.AdminConfig, error) {
	var c settings.AdminConfig
	err := ps.db.QueryRowContext(ctx, `
		SELECT provider, model, credential, admin_emails, updated_at, updated_by
		FROM admin_config
		ORDER BY updated_at DESC, id DESC
		LIMIT 1
	`).Scan(&c.Provider, &c.Model, &c.Credential, pq.Array(&c.AdminEmails), &c.UpdatedAt, &c.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin config: %w", err)
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// SaveAdminConfig inserts a revision and deletes every older one in the
// same transaction.
func (ps *PostgresStore) SaveAdminConfig(ctx context.Context, cfg settings.AdminConfig) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	emails := cfg.AdminEmails
	if emails == nil {
		emails = []string{}
	}
	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO admin_config (provider, model, credential, admin_emails, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, cfg.Provider, cfg.Model, cfg.Credential, pq.Array(emails), cfg.UpdatedAt, cfg.UpdatedBy).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to save admin config: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM admin_config WHERE id <> $1`, id); err != nil {
		return fmt.Errorf("failed to prune admin config: %w", err)
	}
	return tx.Commit()
}

func (ps *PostgresStore) InsertTrip(ctx context.Context, rec trip.Record) error {
	plan, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode trip plan: %w", err)
	}
	_, err = ps.db.ExecContext(ctx, `
		INSERT INTO trips (trip_id, owner_id, plan, created_at)
		VALUES ($1, $2, $3, $4)
	`, rec.ID, rec.OwnerID, plan, rec.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("trip %s: %w", rec.ID, trip.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	return nil
}

func (ps *PostgresStore) ListTrips(ctx context.Context, ownerID string, limit int, cur string) (trip.Page, error) {
	after, err := decodeCursor(cur)
	if err != nil {
		return trip.Page{}, err
	}

	var rows *sql.Rows
	if after == nil {
		rows, err = ps.db.QueryContext(ctx, `
			SELECT trip_id, owner_id, plan, created_at
			FROM trips
			WHERE owner_id = $1
			ORDER BY created_at DESC, trip_id DESC
			LIMIT $2
		`, ownerID, limit+1)
	} else {
		rows, err = ps.db.QueryContext(ctx, `
			SELECT trip_id, owner_id, plan, created_at
			FROM trips
			WHERE owner_id = $1 AND (created_at, trip_id) < ($2, $3)
			ORDER BY created_at DESC, trip_id DESC
			LIMIT $4
		`, ownerID, after.createdAt, after.id, limit+1)
	}
	if err != nil {
		return trip.Page{}, fmt.Errorf("failed to list trips: %w", err)
	}
	return collectTrips(rows, limit)
}

func (ps *PostgresStore) ListAllTrips(ctx context.Context, limit int, cur string) (trip.Page, error) {
	after, err := decodeCursor(cur)
	if err != nil {
		return trip.Page{}, err
	}

	var rows *sql.Rows
	if after == nil {
		rows, err = ps.db.QueryContext(ctx, `
			SELECT trip_id, owner_id, plan, created_at
			FROM trips
			ORDER BY created_at DESC, trip_id DESC
			LIMIT $1
		`, limit+1)
	} else {
		rows, err = ps.db.QueryContext(ctx, `
			SELECT trip_id, owner_id, plan, created_at
			FROM trips
			WHERE (created_at, trip_id) < ($1, $2)
			ORDER BY created_at DESC, trip_id DESC
			LIMIT $3
		`, after.createdAt, after.id, limit+1)
	}
	if err != nil {
		return trip.Page{}, fmt.Errorf("failed to list all trips: %w", err)
	}
	return collectTrips(rows, limit)
}

func collectTrips(rows *sql.Rows, limit int) (trip.Page, error) {
	defer rows.Close()
	var recs []trip.Record
	for rows.Next() {
		rec, err := scanTrip(rows)
		if err != nil {
			return trip.Page{}, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return trip.Page{}, fmt.Errorf("failed to list trips: %w", err)
	}
	return tripPage(recs, limit), nil
}

func (ps *PostgresStore) CountTrips(ctx context.Context) (int64, error) {
	var n int64
	if err := ps.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count trips: %w", err)
	}
	return n, nil
}

func (ps *PostgresStore) GetTrip(ctx context.Context, ownerID, id string) (*trip.Record, error) {
	row := ps.db.QueryRowContext(ctx, `
		SELECT trip_id, owner_id, plan, created_at
		FROM trips
		WHERE trip_id = $1 AND owner_id = $2
	`, id, ownerID)
	rec, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, trip.ErrNotFound
	}
	return rec, err
}

func (ps *PostgresStore) DeleteTrip(ctx context.Context, ownerID, id string) error {
	res, err := ps.db.ExecContext(ctx, `DELETE FROM trips WHERE trip_id = $1 AND owner_id = $2`, id, ownerID)
	return deleted(res, err, "trip", trip.ErrNotFound)
}

func (ps *PostgresStore) RemoveTrip(ctx context.Context, id string) error {
	res, err := ps.db.ExecContext(ctx, `DELETE FROM trips WHERE trip_id = $1`, id)
	return deleted(res, err, "trip", trip.ErrNotFound)
}

// UpsertUser keeps created_at from the first insert.
func (ps *PostgresStore) UpsertUser(ctx context.Context, u user.User) error {
	_, err := ps.db.ExecContext(ctx, `
		INSERT INTO users (user_id, email, name, image_url, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			image_url = EXCLUDED.image_url,
			last_seen_at = EXCLUDED.last_seen_at
	`, u.ID, u.Email, u.Name, u.ImageURL, u.CreatedAt, u.LastSeenAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (ps *PostgresStore) ListUsers(ctx context.Context, limit int, cur string) (user.Page, error) {
	after, err := decodeCursor(cur)
	if err != nil {
		return user.Page{}, err
	}

	var rows *sql.Rows
	if after == nil {
		rows, err = ps.db.QueryContext(ctx, `
			SELECT user_id, email, name, image_url, created_at, last_seen_at
			FROM users
			ORDER BY created_at DESC, user_id DESC
			LIMIT $1
		`, limit+1)
	} else {
		rows, err = ps.db.QueryContext(ctx, `
			SELECT user_id, email, name, image_url, created_at, last_seen_at
			FROM users
			WHERE (created_at, user_id) < ($1, $2)
			ORDER BY created_at DESC, user_id DESC
			LIMIT $3
		`, after.createdAt, after.id, limit+1)
	}
	if err != nil {
		return user.Page{}, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var found []user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.ImageURL, &u.CreatedAt, &u.LastSeenAt); err != nil {
			return user.Page{}, fmt.Errorf("failed to scan user: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()
		u.LastSeenAt = u.LastSeenAt.UTC()
		found = append(found, u)
	}
	if err := rows.Err(); err != nil {
		return user.Page{}, fmt.Errorf("failed to list users: %w", err)
	}
	return userPage(found, limit), nil
}

func (ps *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := ps.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (ps *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	res, err := ps.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = $1`, id)
	return deleted(res, err, "user", user.ErrNotFound)
}

// deleted maps a DELETE result with no affected rows to notFound.
func deleted(res sql.Result, err error, what string, notFound error) error {
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error { return ps.db.HealthCheck(ctx) }

func (ps *PostgresStore) Close(ctx context.Context) error { return ps.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(s scanner) (*trip.Record, error) {
	var (
		rec  trip.Record
		plan []byte
	)
	if err := s.Scan(&rec.ID, &rec.OwnerID, &plan, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan trip: %w", err)
	}
	if err := json.Unmarshal(plan, &rec.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode trip %s: %w", rec.ID, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
