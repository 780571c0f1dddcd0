package http

import (
	"log/slog"
	"net/http"
	"strings"
)

type RouterConfig struct {
	Auth       *AuthHandler
	WorkOrders *WorkOrderHandler
	// Sessions gates every route except POST /sessions. Nil leaves the
	// routes open, which tests rely on.
	Sessions   SessionValidator
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler { return h }
	if cfg.Sessions != nil {
		gate := RequireSession(cfg.Sessions, cfg.Logger)
		protect = func(h http.HandlerFunc) http.Handler { return gate(h) }
	}

	if cfg.Auth != nil {
		mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.CreateSession(w, r)
		})
		mux.Handle("/sessions/current", protect(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Auth.DeleteCurrentSession(w, r)
		}))
		mux.Handle("/sessions/", protect(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.URL.Path, "/sessions/")
			if token == "" {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Auth.DeleteSession(w, r, token)
		}))
	}

	if cfg.WorkOrders != nil {
		mux.Handle("/work-orders", protect(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.WorkOrders.List(w, r)
		}))
		mux.Handle("/work-orders/recurrences", protect(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.WorkOrders.ExpandRecurrence(w, r)
		}))
		mux.Handle("/work-orders/overlaps/resolve", protect(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.WorkOrders.ResolveOverlaps(w, r)
		}))
		mux.Handle("/work-orders/", protect(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimPrefix(r.URL.Path, "/work-orders/")
			if id == "" || strings.Contains(id, "/") {
				http.NotFound(w, r)
				return
			}
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.WorkOrders.Get(w, r.WithContext(ContextWithWorkOrderID(r.Context(), id)))
		}))
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
