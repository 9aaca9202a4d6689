package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dantte-lp/nat64d/internal/natdb"
)

// NewRouter builds the chi-routed administrative HTTP surface over db.
//
// Routes:
//
//	POST   /v1/{proto}/static   -> AddStatic
//	DELETE /v1/{proto}/bib      -> Remove
//	DELETE /v1/{proto}/range    -> RemoveRange
//	POST   /v1/{proto}/flush    -> Flush
//	GET    /v1/{proto}/bibs     -> paged ForEach
//	GET    /v1/{proto}/sessions -> paged ForEachSession
//
// {proto} is one of udp, tcp, icmp.
func NewRouter(db *natdb.Database) http.Handler {
	h := NewHandler(db)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]string{"service": "nat64d-admin"})
	})

	r.Route("/v1/{proto}", func(r chi.Router) {
		r.Post("/static", h.AddStatic)
		r.Delete("/bib", h.Remove)
		r.Delete("/range", h.RemoveRange)
		r.Post("/flush", h.Flush)
		r.Get("/bibs", h.bibsPage)
		r.Get("/sessions", h.sessionsPage)
	})

	return r
}
