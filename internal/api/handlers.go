package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"autoelite.com/storefront/internal/auth"
	"autoelite.com/storefront/internal/core"
	"autoelite.com/storefront/internal/metrics"
	"autoelite.com/storefront/internal/store"
)

// UserStore is the account data the login and user endpoints need.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash string, role store.UserRole) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByID(ctx context.Context, id string) (*store.User, error)
}

type Deps struct {
	Vehicles  *core.VehicleService
	Sessions  *core.SessionManager
	Assistant *core.Responder
	Leads     *core.LeadService
	Users     UserStore
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

type APIHandler struct {
	vehicles  *core.VehicleService
	sessions  *core.SessionManager
	assistant *core.Responder
	leads     *core.LeadService
	users     UserStore
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewAPIHandler(d Deps) *APIHandler {
	return &APIHandler{
		vehicles:  d.Vehicles,
		sessions:  d.Sessions,
		assistant: d.Assistant,
		leads:     d.Leads,
		users:     d.Users,
		metrics:   d.Metrics,
		log:       d.Logger,
	}
}

type contextKey string

const (
	ctxUserID contextKey = "userID"
	ctxRole   contextKey = "role"
)

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserID).(string)
	return id
}

func roleFrom(ctx context.Context) store.UserRole {
	role, _ := ctx.Value(ctxRole).(store.UserRole)
	return role
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, role, err := auth.ValidateJWT(tokenString)
		if err != nil {
			h.log.Debug().Err(err).Msg("rejected token")
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		// Tokens outlive accounts; make sure the user still exists with the
		// role the token claims.
		user, err := h.users.GetUserByID(r.Context(), userID)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("failed to load user for token")
			writeError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}
		if user == nil || user.Role != role {
			writeError(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, user.ID)
		ctx = context.WithValue(ctx, ctxRole, user.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole lets the request through only for the listed roles. It must
// run after JWTAuthMiddleware.
func RequireRole(roles ...store.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := roleFrom(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Insufficient permissions")
		})
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.log.Error().Err(err).Str("email", req.Email).Msg("failed to load user for login")
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Role)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to generate token")
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": string(user.Role)})
}

type CreateUserRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Role     store.UserRole `json:"role"`
}

func (h *APIHandler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if req.Role == "" {
		req.Role = store.RoleSeller
	}
	if req.Role != store.RoleAdmin && req.Role != store.RoleSeller {
		writeError(w, http.StatusBadRequest, "Role must be admin or seller")
		return
	}

	existing, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to check existing user")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "User already exists")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to hash password")
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}
	user, err := h.users.CreateUser(r.Context(), req.Email, hashedPassword, req.Role)
	if err != nil {
		h.log.Error().Err(err).Str("email", req.Email).Msg("failed to create user")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	h.log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Str("by", userIDFrom(r.Context())).Msg("user created")
	writeJSON(w, http.StatusCreated, user)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
