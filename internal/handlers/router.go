package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jason-s-yu/blackjack/internal/middleware"
)

// RouterOptions configures the parts of the HTTP surface that vary by deployment.
type RouterOptions struct {
	AllowedOrigins []string
	AuthRateLimit  float64 // requests per second per client on /login and /register
	AuthRateBurst  int
}

// NewRouter builds the HTTP API served on the backend port.
func NewRouter(s *GameServer, opts RouterOptions) (http.Handler, error) {
	compress, err := middleware.Compress(1024)
	if err != nil {
		return nil, err
	}
	if s.WSOriginPatterns == nil {
		s.WSOriginPatterns = originHosts(opts.AllowedOrigins)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true, // the session lives in a cookie
		MaxAge:           300,
	}))

	limiter := middleware.NewIPRateLimiter(opts.AuthRateLimit, opts.AuthRateBurst)

	r.Group(func(r chi.Router) {
		r.Use(compress)
		r.Get("/api/test", s.TestHandler)
		r.With(limiter.Middleware).Post("/register", s.RegisterHandler)
		r.With(limiter.Middleware).Post("/login", s.LoginHandler)
		r.Post("/logout", s.LogoutHandler)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.RequireSession)

		// the websocket feed must not sit behind the compressor
		r.Get("/ws", s.EventsWSHandler)

		r.Group(func(r chi.Router) {
			r.Use(compress)
			r.Get("/user/profile", s.ProfileHandler)
			r.Get("/user/history", s.HistoryHandler)
			r.Post("/deal", s.DealHandler)
			r.Post("/hit", s.HitHandler)
			r.Post("/double", s.DoubleHandler)
			r.Post("/stand", s.StandHandler)
			r.Get("/game/{id}", s.GameStateHandler)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	return r, nil
}

// originHosts turns CORS origins ("http://localhost:5173") into the host
// patterns the websocket origin check expects ("localhost:5173").
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}
