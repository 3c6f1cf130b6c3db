package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/scrapco/scrapco-go/internal/adapters/metrics"
)

// Server is the HTTP front of the dispatcher: customer pickup endpoints behind
// bearer auth, vendor callbacks behind HMAC signatures, and a health probe.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// ServerDeps collects everything the route table needs
type ServerDeps struct {
	Pickups *PickupHandlers
	Vendors *VendorHandlers
	Auth    TokenAuthenticator
	Health  func(ctx context.Context) error

	// Metrics exposes /metrics and per-route request metrics when set
	Metrics *metrics.Metrics
}

// NewServer builds the router and wraps it in an http.Server on the given port
func NewServer(port int, deps ServerDeps, logger zerolog.Logger) *Server {
	router := mux.NewRouter()
	router.Use(RequestLoggingMiddleware(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.HTTP.Middleware(muxRouteTemplate))
		router.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	router.HandleFunc("/healthz", healthHandler(deps.Health)).Methods(http.MethodGet)

	customer := router.PathPrefix("/api/pickups").Subrouter()
	customer.Use(BearerAuthMiddleware(deps.Auth))
	customer.HandleFunc("", deps.Pickups.Create).Methods(http.MethodPost)
	customer.HandleFunc("/{id}", deps.Pickups.Get).Methods(http.MethodGet)
	customer.HandleFunc("/{id}/cancel", deps.Pickups.Cancel).Methods(http.MethodPost)
	customer.HandleFunc("/{id}/find-vendor", deps.Pickups.FindVendorAgain).Methods(http.MethodPost)

	callbacks := router.PathPrefix("/api/vendor").Subrouter()
	callbacks.HandleFunc("/accept", deps.Vendors.Accept).Methods(http.MethodPost)
	callbacks.HandleFunc("/reject", deps.Vendors.Reject).Methods(http.MethodPost)
	callbacks.HandleFunc("/on-the-way", deps.Vendors.OnTheWay).Methods(http.MethodPost)
	callbacks.HandleFunc("/pickup-done", deps.Vendors.PickupDone).Methods(http.MethodPost)
	callbacks.HandleFunc("/location", deps.Vendors.UpdateLocation).Methods(http.MethodPost)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown or a listener error
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// muxRouteTemplate resolves the matched route template so metrics label
// cardinality stays bounded by the route table
func muxRouteTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tpl
}

func healthHandler(probe func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if probe != nil {
			if err := probe(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
