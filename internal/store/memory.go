package store

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MemoryStore keeps apps and rooms in process memory. It backs local
// development and tests; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	apps    map[string]*App
	hashes  map[string][]byte // appID -> bcrypt(secret)
	rooms   map[string]*Room
	byApp   map[string][]string // appID -> roomIDs in creation order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		apps:   make(map[string]*App),
		hashes: make(map[string][]byte),
		rooms:  make(map[string]*Room),
		byApp:  make(map[string][]string),
	}
}

func (s *MemoryStore) CreateApp(_ context.Context, app *App) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(app.Secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *app
	stored.Secret = ""
	s.apps[app.ID] = &stored
	s.hashes[app.ID] = hash
	return nil
}

func (s *MemoryStore) GetApp(_ context.Context, appID string) (*App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[appID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (s *MemoryStore) ListApps(_ context.Context) ([]*App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*App, 0, len(s.apps))
	for _, app := range s.apps {
		cp := *app
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) VerifySecret(_ context.Context, appID, secret string) (*App, error) {
	s.mu.RLock()
	app, ok := s.apps[appID]
	hash := s.hashes[appID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(secret)) != nil {
		return nil, ErrUnauthorized
	}
	cp := *app
	return &cp, nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apps[room.AppID]; !ok {
		return ErrNotFound
	}
	cp := *room
	s.rooms[room.ID] = &cp
	s.byApp[room.AppID] = append(s.byApp[room.AppID], room.ID)
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (s *MemoryStore) ListRooms(_ context.Context, appID string) ([]*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byApp[appID]
	out := make([]*Room, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		cp := *s.rooms[ids[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
