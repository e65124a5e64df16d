package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autoelite.com/storefront/internal/store"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiHandler.instrument)   // Request logging and metrics
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	if apiHandler.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(apiHandler.metrics.Registry, promhttp.HandlerOpts{}))
	}

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", apiHandler.HealthHandler)
		r.Post("/login", apiHandler.LoginHandler)

		r.Get("/vehicles", apiHandler.ListVehiclesHandler)
		r.Get("/vehicles/{vehicleID}", apiHandler.GetVehicleHandler)

		r.Route("/chat/sessions", func(r chi.Router) {
			r.Post("/", apiHandler.CreateSessionHandler)
			r.Get("/{sessionID}", apiHandler.GetSessionHandler)
			r.Delete("/{sessionID}", apiHandler.CloseSessionHandler)
			r.Post("/{sessionID}/identity", apiHandler.SubmitIdentityHandler)
			r.Post("/{sessionID}/messages", apiHandler.SendMessageHandler)
		})

		r.Post("/functions/chat-assistant", apiHandler.ChatAssistantHandler)

		// Staff routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)
			r.Use(RequireRole(store.RoleAdmin, store.RoleSeller))

			r.Get("/vehicles", apiHandler.AdminListVehiclesHandler)
			r.Put("/vehicles/{vehicleID}", apiHandler.UpdateVehicleHandler)
			r.Get("/stats", apiHandler.StatsHandler)

			r.Get("/conversations", apiHandler.ListConversationsHandler)
			r.Get("/conversations/{conversationID}", apiHandler.GetConversationHandler)
			r.Post("/conversations/{conversationID}/close", apiHandler.CloseConversationHandler)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(store.RoleAdmin))
				r.Post("/vehicles", apiHandler.CreateVehicleHandler)
				r.Delete("/vehicles/{vehicleID}", apiHandler.DeleteVehicleHandler)
				r.Post("/users", apiHandler.CreateUserHandler)
			})
		})
	})

	return r
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	mode := "live"
	if h.assistant != nil && h.assistant.Degraded() {
		mode = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"assistant_mode":  mode,
		"active_sessions": h.sessions.Len(),
	})
}

// instrument logs every request and records it under its route pattern.
func (h *APIHandler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)

		if h.metrics != nil {
			h.metrics.RecordHTTPRequest(route, strconv.Itoa(status), duration)
		}
		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", duration).
			Msg("http request")
	})
}
