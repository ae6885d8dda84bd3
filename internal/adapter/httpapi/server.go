package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog"

	"query-assistant/internal/application/port/input"
	"query-assistant/internal/application/port/output"
	"query-assistant/internal/domain/entity"
)

const SecretHeader = "Secret-token"

type Config struct {
	ServiceName    string
	SecretToken    string
	CORSOrigins    []string
	RequestTimeout time.Duration
	JSONLogs       bool
}

type Server struct {
	cfg     Config
	queries input.QueryHandler
	loader  input.KnowledgeLoader
	logger  output.LoggerPort
}

func NewServer(cfg Config, queries input.QueryHandler, loader input.KnowledgeLoader, logger output.LoggerPort) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "query-assistant"
	}
	return &Server{cfg: cfg, queries: queries, loader: loader, logger: logger}
}

// Handler builds the router. CORS runs before authentication so preflight
// requests never need the secret.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	accessLog := httplog.NewLogger(s.cfg.ServiceName, httplog.Options{
		JSON:    s.cfg.JSONLogs,
		Concise: !s.cfg.JSONLogs,
	})
	r.Use(httplog.RequestLogger(accessLog))
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", SecretHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSecret)

		r.Group(func(r chi.Router) {
			if s.cfg.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.RequestTimeout))
			}
			for _, path := range []string{"/query/", "/query"} {
				r.Post(path, s.handleQuery)
			}
			for _, path := range []string{"/legalquery/", "/legalquery"} {
				r.Post(path, s.handleLegalQuery)
			}
		})

		// chi params cannot split setup_civil_law_vector_db, so each collection gets its own route.
		for _, c := range entity.Collections() {
			r.Get("/training/setup_"+c.SetupName()+"_vector_db", s.handleSetup(c))
		}
		r.Get("/training/setup_all_vector_dbs", s.handleSetupAll)
	})

	return r
}

func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(SecretHeader)
		if s.cfg.SecretToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.SecretToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing "+SecretHeader)
			return
		}
		next.ServeHTTP(w, r)
	})
}
