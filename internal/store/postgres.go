package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// PostgresStore backs the access plane with Postgres via database/sql.
type PostgresStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS apps (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	secret_hash TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rooms (
	id               TEXT PRIMARY KEY,
	app_id           TEXT NOT NULL REFERENCES apps(id) ON DELETE CASCADE,
	name             TEXT NOT NULL,
	max_participants INT  NOT NULL DEFAULT 2 CHECK (max_participants >= 1),
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS rooms_app_id_idx ON rooms(app_id);
`

// NewPostgresStore opens the database, applies the schema and verifies
// connectivity.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateApp(ctx context.Context, app *App) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(app.Secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO apps (id, name, secret_hash, created_at) VALUES ($1, $2, $3, $4)`,
		app.ID, app.Name, string(hash), app.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetApp(ctx context.Context, appID string) (*App, error) {
	var app App
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM apps WHERE id = $1`, appID,
	).Scan(&app.ID, &app.Name, &app.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *PostgresStore) ListApps(ctx context.Context) ([]*App, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM apps ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*App
	for rows.Next() {
		var app App
		if err := rows.Scan(&app.ID, &app.Name, &app.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &app)
	}
	return out, rows.Err()
}

func (s *PostgresStore) VerifySecret(ctx context.Context, appID, secret string) (*App, error) {
	var app App
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, secret_hash, created_at FROM apps WHERE id = $1`, appID,
	).Scan(&app.ID, &app.Name, &hash, &app.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return nil, ErrUnauthorized
	}
	return &app, nil
}

func (s *PostgresStore) CreateRoom(ctx context.Context, room *Room) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, app_id, name, max_participants, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		room.ID, room.AppID, room.Name, room.MaxParticipants, room.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, app_id, name, max_participants, created_at FROM rooms WHERE id = $1`,
		roomID,
	).Scan(&room.ID, &room.AppID, &room.Name, &room.MaxParticipants, &room.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *PostgresStore) ListRooms(ctx context.Context, appID string) ([]*Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, app_id, name, max_participants, created_at
		 FROM rooms WHERE app_id = $1 ORDER BY created_at DESC`, appID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.AppID, &room.Name, &room.MaxParticipants, &room.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &room)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error { return s.db.Close() }
