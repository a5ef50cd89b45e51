package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedtree/internal/middleware"
)

// RouterDeps はルーター構築に必要な依存をまとめる。
type RouterDeps struct {
	Tree        TreeService
	Collections CollectionService
	Refresh     RefreshService
	Probe       ProbeService

	Logger            *slog.Logger
	RateLimiter       *middleware.RateLimiter
	MetricsHandler    http.Handler
	CORSAllowedOrigin string
}

// NewRouter はAPIルーターを構築する。
// /api配下はオーナーヘッダー必須で、オーナー単位のレート制限がかかる。
// /healthと/metricsはミドルウェアの外に置く。
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	r.Get("/health", handleHealth)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	collectionHandler := NewCollectionHandler(deps.Tree, deps.Collections, deps.Refresh, deps.Probe)
	itemHandler := NewItemHandler(deps.Collections)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.NewOwnerMiddleware())
		if deps.RateLimiter != nil {
			api.Use(deps.RateLimiter.Middleware())
		}

		api.Route("/collections", func(rc chi.Router) {
			rc.Get("/", collectionHandler.List)
			rc.Post("/", collectionHandler.Create)
			rc.Post("/move", collectionHandler.Move)
			rc.Post("/refresh", collectionHandler.RefreshAll)
			rc.Post("/verifyUrl", collectionHandler.VerifyURL)

			rc.Put("/{id}", collectionHandler.Update)
			rc.Delete("/{id}", collectionHandler.Delete)
			rc.Post("/{id}/markAsRead", collectionHandler.MarkAsRead)
			rc.Post("/{id}/refresh", collectionHandler.Refresh)
			rc.Post("/{id}/refreshSubtree", collectionHandler.RefreshSubtree)
			rc.Put("/{id}/items/{itemId}/read", itemHandler.SetRead)
		})
	})

	return r
}

// handleHealth はGET /healthを処理する。
func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
