package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Ashish23jun/One-Call/internal/apperr"
	"github.com/Ashish23jun/One-Call/internal/store"
	"github.com/Ashish23jun/One-Call/internal/token"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	storeStatus := "connected"
	code := http.StatusOK
	if err := a.store.Ping(r.Context()); err != nil {
		status, storeStatus = "degraded", "error"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"service": "one-call-api",
		"store":   storeStatus,
	})
}

// newAppSecret returns a 48-hex-char high-entropy bearer secret. It is
// echoed exactly once, in the creation response.
func newAppSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (a *API) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if body.Name == "" {
		a.writeError(w, r, apperr.New(apperr.KindValidation, "name is required"))
		return
	}

	secret, err := newAppSecret()
	if err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}

	app := &store.App{
		ID:        uuid.NewString(),
		Name:      body.Name,
		Secret:    secret,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateApp(r.Context(), app); err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}

	a.log.Info("app created", "app", app.ID, "name", app.Name)
	writeJSON(w, http.StatusCreated, app)
}

func (a *API) handleListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := a.store.ListApps(r.Context())
	if err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}
	if apps == nil {
		apps = []*store.App{}
	}
	writeJSON(w, http.StatusOK, apps)
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	app, _ := appFrom(r.Context())

	var body struct {
		Name            string `json:"name"`
		MaxParticipants *int   `json:"maxParticipants"`
	}
	if err := decodeBody(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}
	if body.Name == "" {
		a.writeError(w, r, apperr.New(apperr.KindValidation, "name is required"))
		return
	}

	maxParticipants := store.DefaultMaxParticipants
	if body.MaxParticipants != nil {
		if *body.MaxParticipants < 1 {
			a.writeError(w, r, apperr.New(apperr.KindValidation, "maxParticipants must be at least 1"))
			return
		}
		maxParticipants = *body.MaxParticipants
	}

	room := &store.Room{
		ID:              uuid.NewString(),
		AppID:           app.ID,
		Name:            body.Name,
		MaxParticipants: maxParticipants,
		CreatedAt:       time.Now().UTC(),
	}
	if err := a.store.CreateRoom(r.Context(), room); err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}

	a.log.Info("room created", "app", app.ID, "room", room.ID, "cap", maxParticipants)
	writeJSON(w, http.StatusCreated, room)
}

func (a *API) handleListRooms(w http.ResponseWriter, r *http.Request) {
	app, _ := appFrom(r.Context())

	rooms, err := a.store.ListRooms(r.Context(), app.ID)
	if err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}
	if rooms == nil {
		rooms = []*store.Room{}
	}
	writeJSON(w, http.StatusOK, rooms)
}

// roomForApp loads a room and enforces tenant ownership.
func (a *API) roomForApp(r *http.Request, appID string) (*store.Room, error) {
	roomID := mux.Vars(r)["roomId"]
	room, err := a.store.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "room %s not found", roomID)
		}
		return nil, apperr.Internal(err)
	}
	if room.AppID != appID {
		return nil, apperr.New(apperr.KindForbidden, "room belongs to another app")
	}
	return room, nil
}

func (a *API) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	app, _ := appFrom(r.Context())

	room, err := a.roomForApp(r, app.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (a *API) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	app, _ := appFrom(r.Context())

	room, err := a.roomForApp(r, app.ID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var body struct {
		UserID    string `json:"userId"`
		Role      string `json:"role"`
		ExpiresIn string `json:"expiresIn"`
	}
	if err := decodeBody(r, &body); err != nil {
		a.writeError(w, r, err)
		return
	}

	if body.UserID == "" || len(body.UserID) > token.MaxUserIDLen {
		a.writeError(w, r, apperr.Newf(apperr.KindValidation,
			"userId must be 1-%d characters", token.MaxUserIDLen))
		return
	}
	role := token.Role(body.Role)
	if !role.Valid() {
		a.writeError(w, r, apperr.Newf(apperr.KindValidation, "unknown role %q", body.Role))
		return
	}

	ttl := a.defaultTTL
	if body.ExpiresIn != "" {
		ttl, err = token.ParseTTL(body.ExpiresIn)
		if err != nil {
			a.writeError(w, r, apperr.New(apperr.KindValidation, err.Error()))
			return
		}
	}

	grant, err := a.tokens.Issue(app.ID, room.ID, body.UserID, role, ttl)
	if err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}

	a.metrics.TokensIssued.Inc()
	a.log.Info("grant issued", "app", app.ID, "room", room.ID,
		"user", body.UserID, "role", role, "jti", grant.GrantID)
	writeJSON(w, http.StatusCreated, grant)
}

// handleRevokeToken puts a grant id on the deny-list. The optional body
// field expiresAt bounds the deny-list entry to the grant's own lifetime;
// without it the entry is kept for 24h, longer than any sane grant TTL.
func (a *API) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	app, _ := appFrom(r.Context())

	if _, err := a.roomForApp(r, app.ID); err != nil {
		a.writeError(w, r, err)
		return
	}

	var body struct {
		ExpiresAt *time.Time `json:"expiresAt"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &body); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	until := time.Now().Add(24 * time.Hour)
	if body.ExpiresAt != nil {
		until = *body.ExpiresAt
	}

	jti := mux.Vars(r)["jti"]
	if err := a.tokens.Revoke(r.Context(), jti, until); err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}

	a.metrics.TokensRevoked.Inc()
	a.log.Info("grant revoked", "app", app.ID, "jti", jti)
	w.WriteHeader(http.StatusNoContent)
}
