package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	logx "stockwatch/pkg/logx"
)

type RouterOptions struct {
	Token string
	// Pprof mounts the runtime profiler under /debug.
	Pprof bool
}

// NewRouter builds the API routes. /healthz is always public; everything
// else requires the token when one is set.
func NewRouter(h *Handler, opt RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(withAuth(opt.Token))

		r.Route("/api", func(r chi.Router) {
			r.Post("/check", h.checkAll)

			r.Route("/items", func(r chi.Router) {
				r.Get("/", h.listItems)
				r.Post("/", h.createItem)
				r.Post("/{id}/check", h.checkItem)
				r.Post("/{id}/toggle", h.toggleItem)
				r.Get("/{id}/history", h.itemHistory)
			})

			r.Get("/policy", h.getPolicy)
			r.Put("/policy", h.putPolicy)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.listNotifications)
				r.Delete("/", h.clearNotifications)
				r.Post("/test", h.testNotification)
			})

			r.Post("/selector/test", h.testSelector)
			r.Get("/status", h.status)
			r.Get("/time", h.syncTime)
		})

		if opt.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Envelope{Error: &APIError{Code: "not_found", Message: "No such route"}})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{Error: &APIError{Code: "method_not_allowed", Message: "Method not allowed"}})
	})
	return r
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)),
				logx.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// withAuth accepts either "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if tokenEqual(got, tok) {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			if ah := r.Header.Get("Authorization"); ah != "" {
				const p = "Bearer "
				if strings.HasPrefix(ah, p) && tokenEqual(strings.TrimSpace(strings.TrimPrefix(ah, p)), tok) {
					next.ServeHTTP(w, r)
					return
				}
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, Envelope{Error: &APIError{Code: "unauthorized", Message: "Authentication is required"}})
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
