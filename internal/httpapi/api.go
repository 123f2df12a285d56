// Package httpapi serves the access plane: app registration, room CRUD and
// grant issuance, authenticated app-to-server by shared secret.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ashish23jun/One-Call/internal/metrics"
	"github.com/Ashish23jun/One-Call/internal/store"
	"github.com/Ashish23jun/One-Call/internal/token"
)

// API bundles the handlers of the access plane.
type API struct {
	store      store.Store
	tokens     *token.Service
	metrics    *metrics.Metrics
	log        *slog.Logger
	defaultTTL time.Duration
	production bool
}

// Config carries the API's collaborators.
type Config struct {
	Store      store.Store
	Tokens     *token.Service
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	DefaultTTL time.Duration
	Production bool
}

func New(cfg Config) *API {
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &API{
		store:      cfg.Store,
		tokens:     cfg.Tokens,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		defaultTTL: ttl,
		production: cfg.Production,
	}
}

// Router builds the REST surface. gatherer feeds /metrics; pass the same
// registry the metrics were created on.
func (a *API) Router(gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/apps", a.handleCreateApp).Methods(http.MethodPost)
	r.HandleFunc("/apps", a.handleListApps).Methods(http.MethodGet)

	// Room and grant routes are app-to-server and carry header credentials.
	authed := func(h http.HandlerFunc) http.Handler { return a.requireApp(h) }
	r.Handle("/rooms", authed(a.handleCreateRoom)).Methods(http.MethodPost)
	r.Handle("/rooms", authed(a.handleListRooms)).Methods(http.MethodGet)
	r.Handle("/rooms/{roomId}", authed(a.handleGetRoom)).Methods(http.MethodGet)
	r.Handle("/rooms/{roomId}/token", authed(a.handleIssueToken)).Methods(http.MethodPost)
	r.Handle("/rooms/{roomId}/token/{jti}", authed(a.handleRevokeToken)).Methods(http.MethodDelete)

	return r
}
