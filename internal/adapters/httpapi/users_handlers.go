package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/nullable"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/wingz-dispatch/ride-records-api/internal/app/users"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

type CreateUserRequest struct {
	Username    string              `json:"username" validate:"required,max=150"`
	Email       openapi_types.Email `json:"email" validate:"required"`
	Password    string              `json:"password" validate:"required"`
	FirstName   string              `json:"first_name" validate:"max=150"`
	LastName    string              `json:"last_name" validate:"max=150"`
	PhoneNumber *string             `json:"phone_number" validate:"omitempty,max=15"`
	Role        *string             `json:"role" validate:"omitempty,oneof=admin driver rider"`
}

// UpdateUserRequest serves PUT and PATCH. PUT additionally requires username and email.
type UpdateUserRequest struct {
	Username    *string                   `json:"username" validate:"omitempty,max=150"`
	Email       *openapi_types.Email      `json:"email"`
	Password    *string                   `json:"password"`
	FirstName   *string                   `json:"first_name" validate:"omitempty,max=150"`
	LastName    *string                   `json:"last_name" validate:"omitempty,max=150"`
	PhoneNumber nullable.Nullable[string] `json:"phone_number"`
	Role        *string                   `json:"role" validate:"omitempty,oneof=admin driver rider"`
	IsActive    *bool                     `json:"is_active"`
}

type UserJSON struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Role        string    `json:"role"`
	PhoneNumber *string   `json:"phone_number"`
	IsActive    bool      `json:"is_active"`
	DateJoined  time.Time `json:"date_joined"`
}

func (s *Server) GetMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromContext(r.Context())
	me, err := s.Users.Me(r.Context(), p.UserID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userFromDomain(me))
}

func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := pageRequest(q)
	if !ok {
		pageNotFound(w, r)
		return
	}

	in := users.ListUsersInput{Search: strings.TrimSpace(q.Get("search"))}
	if v := q.Get("role"); v != "" {
		role, err := domain.ParseRole(v)
		if err != nil {
			writeValidation(w, r, "invalid filter", map[string]any{"role": "must be one of: admin driver rider"})
			return
		}
		in.Role = &role
	}
	if q.Has("is_active") {
		var active bool
		if err := runtime.BindQueryParameter("form", true, false, "is_active", q, &active); err != nil {
			writeValidation(w, r, "invalid filter", map[string]any{"is_active": "must be true or false"})
			return
		}
		in.IsActive = &active
	}

	out, err := s.Users.ListUsers(r.Context(), in, page)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageJSON(r, out, userFromDomain))
}

func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	var body CreateUserRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	in := users.CreateUserInput{
		Username:    body.Username,
		Email:       string(body.Email),
		Password:    body.Password,
		FirstName:   body.FirstName,
		LastName:    body.LastName,
		PhoneNumber: body.PhoneNumber,
	}
	if body.Role != nil {
		role, err := domain.ParseRole(*body.Role)
		if err != nil {
			writeValidation(w, r, "invalid role", map[string]any{"role": err.Error()})
			return
		}
		in.Role = &role
	}

	created, err := s.Users.CreateUser(r.Context(), in)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userFromDomain(created))
}

func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.GetUser(r.Context(), userIDParam(r))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userFromDomain(u))
}

func (s *Server) ReplaceUser(w http.ResponseWriter, r *http.Request) {
	s.updateUser(w, r, true)
}

func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	s.updateUser(w, r, false)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request, full bool) {
	var body UpdateUserRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	if full {
		missing := map[string]any{}
		if body.Username == nil {
			missing["username"] = "required"
		}
		if body.Email == nil {
			missing["email"] = "required"
		}
		if len(missing) > 0 {
			writeValidation(w, r, "invalid request body", missing)
			return
		}
	}

	var in users.UpdateUserInput
	if body.Username != nil {
		in.Username = users.Some(*body.Username)
	}
	if body.Email != nil {
		in.Email = users.Some(string(*body.Email))
	}
	if body.Password != nil {
		in.Password = users.Some(*body.Password)
	}
	if body.FirstName != nil {
		in.FirstName = users.Some(*body.FirstName)
	}
	if body.LastName != nil {
		in.LastName = users.Some(*body.LastName)
	}
	if body.PhoneNumber.IsSpecified() {
		if body.PhoneNumber.IsNull() {
			in.PhoneNumber = users.Null[string]()
		} else if v, err := body.PhoneNumber.Get(); err == nil {
			in.PhoneNumber = users.Some(v)
		}
	}
	if body.Role != nil {
		role, err := domain.ParseRole(*body.Role)
		if err != nil {
			writeValidation(w, r, "invalid role", map[string]any{"role": err.Error()})
			return
		}
		in.Role = users.Some(role)
	}
	if body.IsActive != nil {
		in.IsActive = users.Some(*body.IsActive)
	}

	u, err := s.Users.UpdateUser(r.Context(), userIDParam(r), in)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userFromDomain(u))
}

func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.Users.DeleteUser(r.Context(), userIDParam(r)); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func userIDParam(r *http.Request) domain.UserID {
	return domain.UserID(chi.URLParam(r, "userID"))
}

func userFromDomain(u domain.User) UserJSON {
	return UserJSON{
		ID:          string(u.ID),
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role.String(),
		PhoneNumber: u.PhoneNumber,
		IsActive:    u.IsActive,
		DateJoined:  u.CreatedAt.UTC(),
	}
}
