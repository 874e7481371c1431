// Package api serves the read-only operator status endpoints.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/susu3304/gatebot/internal/admission"
)

// ExpulsionSource lists journaled expulsions.
type ExpulsionSource interface {
	RecentExpulsions(ctx context.Context, limit int) ([]admission.Expulsion, error)
}

type API struct {
	router     *mux.Router
	store      *admission.Store
	expulsions ExpulsionSource
	jwtSecret  []byte
	server     *http.Server
}

func New(bind, jwtSecret string, store *admission.Store, expulsions ExpulsionSource) *API {
	api := &API{
		router:     mux.NewRouter(),
		store:      store,
		expulsions: expulsions,
		jwtSecret:  []byte(jwtSecret),
	}
	api.setupRoutes()
	api.server = &http.Server{
		Addr:              bind,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return api
}

func (a *API) setupRoutes() {
	// Public endpoints
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/chats", a.handleListChats).Methods("GET")
	protected.HandleFunc("/chats/{chat_id}/admissions", a.handleChatAdmissions).Methods("GET")
	protected.HandleFunc("/expulsions", a.handleListExpulsions).Methods("GET")
}

// Handler is the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	// Tokens travel in the Authorization header, so credentials stay off
	// with the wildcard origin.
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) Start() error {
	log.Printf("API server listening on http://%s", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
