package catalog

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"BookStore/internal/auth"
	"BookStore/internal/book"
	"BookStore/pkg/kit"
)

const (
	codeBadJSON    = "bad_json"
	codeValidation = "validation"
	codeNotFound   = "not_found"
	codeInternal   = "internal"
)

type Server struct {
	Store    Store
	Admins   AdminStore
	JWT      *auth.TokenMaker
	TokenTTL time.Duration
	Log      *zap.Logger

	now func() time.Time
}

type mutationResp struct {
	Message string    `json:"message"`
	Book    book.Book `json:"book"`
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	books, err := s.Store.List(r.Context())
	if err != nil {
		s.log().Error("list books failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, codeInternal, "server error", nil)
		return
	}
	if books == nil {
		books = []book.Book{}
	}
	kit.WriteJSON(w, http.StatusOK, books)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, id, "get book failed")
		return
	}
	kit.WriteJSON(w, http.StatusOK, b)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var b book.Book
	if err := kit.DecodeJSON(w, r, &b); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, codeBadJSON, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if err := b.ValidateNew(); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, codeValidation, err.Error(), nil)
		return
	}

	now := s.clock()
	b.ID = uuid.NewString()
	b.Title = strings.TrimSpace(b.Title)
	b.CreatedAt, b.UpdatedAt = now, now

	if err := s.Store.Create(r.Context(), b); err != nil {
		s.log().Error("create book failed", zap.Error(err))
		kit.WriteError(w, r, http.StatusInternalServerError, codeInternal, "server error", nil)
		return
	}

	s.log().Info("book created", zap.String("id", b.ID), zap.String("admin", adminFrom(r)))
	kit.WriteJSON(w, http.StatusCreated, mutationResp{Message: "Book posted successfully", Book: b})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var p book.Patch
	if err := kit.DecodeJSON(w, r, &p); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, codeBadJSON, "bad json", map[string]any{"cause": err.Error()})
		return
	}
	if err := p.Validate(); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, codeValidation, err.Error(), nil)
		return
	}

	b, err := s.Store.Update(r.Context(), id, p, s.clock())
	if err != nil {
		s.writeStoreError(w, r, err, id, "update book failed")
		return
	}

	s.log().Info("book updated", zap.String("id", id), zap.String("admin", adminFrom(r)))
	kit.WriteJSON(w, http.StatusOK, mutationResp{Message: "Book updated successfully", Book: b})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b, err := s.Store.Delete(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, id, "delete book failed")
		return
	}

	s.log().Info("book deleted", zap.String("id", id), zap.String("admin", adminFrom(r)))
	kit.WriteJSON(w, http.StatusOK, mutationResp{Message: "Book deleted successfully", Book: b})
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, id, msg string) {
	if errors.Is(err, ErrNotFound) {
		kit.WriteError(w, r, http.StatusNotFound, codeNotFound, "book not found", map[string]any{"id": id})
		return
	}
	s.log().Error(msg, zap.Error(err), zap.String("id", id))
	kit.WriteError(w, r, http.StatusInternalServerError, codeInternal, "server error", nil)
}

func (s *Server) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *Server) log() *zap.Logger {
	return kit.OrNop(s.Log)
}
