package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"BookStore/pkg/kit"
)

const (
	minPasswordLen = 8
	defaultUserTTL = time.Hour

	codeBadJSON            = "bad_json"
	codeInvalidEmail       = "invalid_email"
	codeWeakPassword       = "weak_password"
	codeEmailExists        = "email_exists"
	codeInvalidCredentials = "invalid_credentials"
	codeMissingToken       = "missing_token"
	codeInvalidToken       = "invalid_token"
	codeInternal           = "internal"
)

type Server struct {
	Log      *zap.Logger
	Store    UserStore
	JWT      *TokenMaker
	TokenTTL time.Duration
}

type credentialsReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

type UserView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

type tokenResp struct {
	AccessToken string   `json:"access_token"`
	ExpiresIn   int64    `json:"expires_in"`
	User        UserView `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, codeBadJSON, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	req.Email = normalizeEmail(req.Email)
	req.Password = normalizePassword(req.Password)

	if err := validation.Validate(req.Email, validation.Required, is.EmailFormat); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, codeInvalidEmail, "invalid email", nil)
		return
	}
	if len(req.Password) < minPasswordLen {
		kit.WriteError(w, r, http.StatusBadRequest, codeWeakPassword, "password too short",
			map[string]any{"min_len": minPasswordLen})
		return
	}

	u := User{
		ID:          "u_" + uuid.NewString(),
		Email:       req.Email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		PhotoURL:    strings.TrimSpace(req.PhotoURL),
		Role:        RoleUser,
	}
	if err := s.Store.Create(r.Context(), u, req.Password); err != nil {
		if errors.Is(err, ErrEmailExists) {
			kit.WriteError(w, r, http.StatusConflict, codeEmailExists, err.Error(), nil)
			return
		}
		s.log().Error("create user failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, codeInternal, "server error", nil)
		return
	}

	s.writeToken(w, r, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, codeBadJSON, "bad json", map[string]any{"cause": err.Error()})
		return
	}

	req.Email = normalizeEmail(req.Email)
	if err := validation.Validate(req.Email, validation.Required, is.EmailFormat); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, codeInvalidEmail, "invalid email", nil)
		return
	}

	u, err := s.Store.Verify(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			kit.WriteError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "invalid credentials", nil)
			return
		}
		s.log().Error("verify user failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, codeInternal, "server error", nil)
		return
	}

	s.writeToken(w, r, http.StatusOK, u)
}

func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	tok, ok := kit.BearerToken(r)
	if !ok {
		kit.WriteError(w, r, http.StatusUnauthorized, codeMissingToken, "missing token", nil)
		return
	}

	claims, err := s.JWT.Parse(tok)
	if err != nil {
		kit.WriteError(w, r, http.StatusUnauthorized, codeInvalidToken, "invalid token", nil)
		return
	}

	u, found, err := s.Store.Get(r.Context(), claims.UserID)
	if err != nil {
		s.log().Error("get user failed", zap.Error(err), zap.String("user_id", claims.UserID))
		kit.WriteError(w, r, http.StatusInternalServerError, codeInternal, "server error", nil)
		return
	}
	if !found {
		kit.WriteError(w, r, http.StatusUnauthorized, codeInvalidToken, "unknown user", nil)
		return
	}

	kit.WriteJSON(w, http.StatusOK, viewOf(u))
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, status int, u User) {
	ttl := s.TokenTTL
	if ttl <= 0 {
		ttl = defaultUserTTL
	}

	tok, err := s.JWT.New(Claims{UserID: u.ID, Email: u.Email, Name: u.DisplayName, Role: u.Role}, ttl)
	if err != nil {
		s.log().Error("token issue", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, codeInternal, "server error", nil)
		return
	}

	kit.WriteJSON(w, status, tokenResp{
		AccessToken: tok,
		ExpiresIn:   int64(ttl.Seconds()),
		User:        viewOf(u),
	})
}

func (s *Server) log() *zap.Logger {
	return kit.OrNop(s.Log)
}

func viewOf(u User) UserView {
	return UserView{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, PhotoURL: u.PhotoURL}
}
