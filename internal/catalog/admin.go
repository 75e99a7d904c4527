package catalog

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"BookStore/internal/auth"
	"BookStore/pkg/kit"
)

const (
	defaultAdminTTL = time.Hour

	codeInvalidCredentials = "invalid_credentials"
	codeMissingToken       = "missing_token"
	codeInvalidToken       = "invalid_token"
	codeForbidden          = "forbidden"
)

type adminLoginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type adminLoginResp struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"user"`
}

func (s *Server) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, codeBadJSON, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		kit.WriteError(w, r, http.StatusBadRequest, codeValidation, "username/password required", nil)
		return
	}

	a, err := s.Admins.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			kit.WriteError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials", nil)
			return
		}
		s.log().Error("verify admin failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, codeInternal, "server error", nil)
		return
	}

	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = defaultAdminTTL
	}
	tok, err := s.JWT.New(auth.Claims{UserID: a.ID, Name: a.Username, Role: auth.RoleAdmin}, ttl)
	if err != nil {
		s.log().Error("token issue", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, codeInternal, "server error", nil)
		return
	}

	var resp adminLoginResp
	resp.Message = "Authentication successful"
	resp.Token = tok
	resp.User.Username = a.Username
	resp.User.Role = auth.RoleAdmin
	kit.WriteJSON(w, http.StatusOK, resp)
}

type ctxKey string

const adminKey ctxKey = "admin"

func adminFrom(r *http.Request) string {
	v, _ := r.Context().Value(adminKey).(string)
	return v
}

// RequireAdmin admits requests carrying a valid admin token.
func RequireAdmin(jwt *auth.TokenMaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := kit.BearerToken(r)
			if !ok {
				kit.WriteError(w, r, http.StatusUnauthorized, codeMissingToken, "missing token", nil)
				return
			}

			claims, err := jwt.Parse(tok)
			if err != nil {
				kit.WriteError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid token", nil)
				return
			}
			if claims.Role != auth.RoleAdmin {
				kit.WriteError(w, r, http.StatusForbidden, codeForbidden, "admin only", nil)
				return
			}

			ctx := context.WithValue(r.Context(), adminKey, claims.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
