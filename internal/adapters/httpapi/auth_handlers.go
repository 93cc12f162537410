package httpapi

import (
	"errors"
	"net/http"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/auth/tokens"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type TokenPairJSON struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var body LoginRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	u, err := s.Users.Authenticate(r.Context(), body.Username, body.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	pair, err := s.Tokens.IssuePair(string(u.ID))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenPairJSON{Access: pair.Access, Refresh: pair.Refresh})
}

// Refresh exchanges a refresh token for a new access token. The user must still be active.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	var body RefreshRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	sub, err := s.Tokens.Verify(body.Refresh, tokens.TypeRefresh)
	if err != nil {
		if errors.Is(err, tokens.ErrInvalidToken) {
			writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token", nil)
			return
		}
		s.writeAppError(w, r, err)
		return
	}
	u, found, err := s.Users.LookupUser(r.Context(), domain.UserID(sub))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if !found || !u.IsActive {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "unknown or inactive user", nil)
		return
	}
	access, err := s.Tokens.IssueAccess(sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenPairJSON{Access: access})
}
