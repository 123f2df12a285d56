// Package store persists apps (tenants) and rooms. The signaling and access
// planes only see the Store interface; main wires in Postgres when
// DATABASE_URL is set and the in-memory store otherwise.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by every Store implementation.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// App is a third-party application embedding the platform. Secret is only
// populated on creation; at rest only its bcrypt hash is kept.
type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Secret    string    `json:"secret,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Room is a call container owned by exactly one app.
type Room struct {
	ID              string    `json:"id"`
	AppID           string    `json:"appId"`
	Name            string    `json:"name"`
	MaxParticipants int       `json:"maxParticipants"`
	CreatedAt       time.Time `json:"createdAt"`
}

// DefaultMaxParticipants caps rooms that do not ask for more seats.
const DefaultMaxParticipants = 2

// Store is the durable backing for the access plane.
type Store interface {
	// CreateApp persists a new app. app.Secret must hold the plaintext
	// secret; implementations hash it and never store the plaintext.
	CreateApp(ctx context.Context, app *App) error

	// GetApp returns the app without its secret, or ErrNotFound.
	GetApp(ctx context.Context, appID string) (*App, error)

	// ListApps returns all apps without secrets, newest first.
	ListApps(ctx context.Context) ([]*App, error)

	// VerifySecret returns the app when the presented secret matches,
	// ErrUnauthorized when it does not, ErrNotFound when the app is
	// unknown. The comparison is constant-time.
	VerifySecret(ctx context.Context, appID, secret string) (*App, error)

	// CreateRoom persists a new room owned by room.AppID.
	CreateRoom(ctx context.Context, room *Room) error

	// GetRoom returns the room or ErrNotFound.
	GetRoom(ctx context.Context, roomID string) (*Room, error)

	// ListRooms returns the rooms owned by appID, newest first.
	ListRooms(ctx context.Context, appID string) ([]*Room, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
