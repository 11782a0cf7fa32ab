package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roledir/roledir/internal/observability"
	"github.com/roledir/roledir/internal/roles"
	"github.com/roledir/roledir/internal/token"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Verifier     token.Verifier
	Cache        token.Cache
	RolesHandler *roles.Handler
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router for the role directory.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:   params.Logger,
		Config:   params.Config,
		Verifier: params.Verifier,
		Cache:    params.Cache,
		Metrics:  params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	params.RolesHandler.MountRoutes(r)

	return r
}
