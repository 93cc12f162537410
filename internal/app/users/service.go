package users

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wingz-dispatch/ride-records-api/internal/app/paging"
	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	clockport "github.com/wingz-dispatch/ride-records-api/internal/ports/out/clock"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

const maxUsernameLen = 150

type Service struct {
	repo userrepo.Repository
	clk  clockport.Clock

	newUserID func() domain.UserID

	// PasswordCost is the bcrypt cost used when hashing passwords.
	PasswordCost int
	Limits       paging.Limits

	// Validate checks emails with the same rules the HTTP layer applies to request bodies.
	Validate *validator.Validate
}

func NewService(repo userrepo.Repository, clk clockport.Clock) *Service {
	return &Service{
		repo: repo,
		clk:  clk,
		newUserID: func() domain.UserID {
			return domain.UserID(uuid.NewString())
		},
		PasswordCost: bcrypt.DefaultCost,
		Validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Service) ListUsers(ctx context.Context, in ListUsersInput, page paging.Request) (paging.Page[domain.User], error) {
	page = s.Limits.Normalize(page)
	f := userrepo.ListFilter{
		Role:     in.Role,
		IsActive: in.IsActive,
		Search:   strings.TrimSpace(in.Search),
	}

	count, err := s.repo.Count(ctx, f)
	if err != nil {
		return paging.Page[domain.User]{}, err
	}
	if !page.Exists(count) {
		return paging.Page[domain.User]{}, errPageNotFound()
	}

	f.Limit = page.PageSize
	f.Offset = page.Offset()
	us, err := s.repo.List(ctx, f)
	if err != nil {
		return paging.Page[domain.User]{}, err
	}
	out := make([]domain.User, 0, len(us))
	for _, u := range us {
		out = append(out, toDomain(u))
	}
	return paging.Page[domain.User]{Count: count, Page: page.Page, PageSize: page.PageSize, Items: out}, nil
}

func (s *Service) GetUser(ctx context.Context, id domain.UserID) (domain.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return domain.User{}, errUserNotFound()
		}
		return domain.User{}, err
	}
	return toDomain(u), nil
}

// Me returns the caller's own record.
func (s *Service) Me(ctx context.Context, caller domain.UserID) (domain.User, error) {
	return s.GetUser(ctx, caller)
}

// LookupUser resolves a user for other modules. found is false when the user does not exist.
func (s *Service) LookupUser(ctx context.Context, id domain.UserID) (u domain.User, found bool, err error) {
	stored, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return toDomain(stored), true, nil
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (domain.User, error) {
	username, err := validateUsername(in.Username)
	if err != nil {
		return domain.User{}, err
	}
	email := domain.NormalizeEmail(in.Email)
	if err := s.validateEmail(email); err != nil {
		return domain.User{}, err
	}
	if in.Password == "" {
		return domain.User{}, errValidation("password", "required")
	}
	role := domain.RoleRider
	if in.Role != nil {
		if !in.Role.Valid() {
			return domain.User{}, errValidation("role", "must be one of admin, driver, rider")
		}
		role = *in.Role
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return domain.User{}, err
	}

	now := s.clk.Now()
	u := userrepo.User{
		ID:           s.newUserID(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    domain.NormalizeHumanName(in.FirstName),
		LastName:     domain.NormalizeHumanName(in.LastName),
		PhoneNumber:  normalizePhone(in.PhoneNumber),
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrUsernameTaken) {
			return domain.User{}, errUsernameTaken()
		}
		return domain.User{}, err
	}
	return toDomain(u), nil
}

func (s *Service) UpdateUser(ctx context.Context, id domain.UserID, in UpdateUserInput) (domain.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return domain.User{}, errUserNotFound()
		}
		return domain.User{}, err
	}

	if in.Username.IsSpecified() {
		if in.Username.IsNull() {
			return domain.User{}, errValidation("username", "cannot be null")
		}
		username, err := validateUsername(in.Username.Value())
		if err != nil {
			return domain.User{}, err
		}
		u.Username = username
	}
	if in.Email.IsSpecified() {
		if in.Email.IsNull() {
			return domain.User{}, errValidation("email", "cannot be null")
		}
		email := domain.NormalizeEmail(in.Email.Value())
		if err := s.validateEmail(email); err != nil {
			return domain.User{}, err
		}
		u.Email = email
	}
	if in.Password.IsSpecified() && !in.Password.IsNull() && in.Password.Value() != "" {
		hash, err := s.hashPassword(in.Password.Value())
		if err != nil {
			return domain.User{}, err
		}
		u.PasswordHash = hash
	}
	if in.FirstName.IsSpecified() {
		u.FirstName = domain.NormalizeHumanName(in.FirstName.Value())
	}
	if in.LastName.IsSpecified() {
		u.LastName = domain.NormalizeHumanName(in.LastName.Value())
	}
	if in.PhoneNumber.IsSpecified() {
		if in.PhoneNumber.IsNull() {
			u.PhoneNumber = nil
		} else {
			v := in.PhoneNumber.Value()
			u.PhoneNumber = normalizePhone(&v)
		}
	}
	if in.Role.IsSpecified() {
		if in.Role.IsNull() || !in.Role.Value().Valid() {
			return domain.User{}, errValidation("role", "must be one of admin, driver, rider")
		}
		u.Role = in.Role.Value()
	}
	if in.IsActive.IsSpecified() {
		if in.IsActive.IsNull() {
			return domain.User{}, errValidation("is_active", "cannot be null")
		}
		u.IsActive = in.IsActive.Value()
	}

	u.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, u); err != nil {
		switch {
		case errors.Is(err, userrepo.ErrUsernameTaken):
			return domain.User{}, errUsernameTaken()
		case errors.Is(err, userrepo.ErrNotFound):
			return domain.User{}, errUserNotFound()
		default:
			return domain.User{}, err
		}
	}
	return toDomain(u), nil
}

// DeleteUser removes the user. Rides that referenced the user keep existing without it.
func (s *Service) DeleteUser(ctx context.Context, id domain.UserID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return errUserNotFound()
		}
		return err
	}
	return nil
}

// Authenticate checks a username/password pair. Unknown users, wrong passwords and inactive
// accounts are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return domain.User{}, errInvalidCredentials()
		}
		return domain.User{}, err
	}
	if u.PasswordHash == "" || !u.IsActive {
		return domain.User{}, errInvalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, errInvalidCredentials()
	}
	return toDomain(u), nil
}

// PromoteToAdmin sets the role of the named user to admin.
func (s *Service) PromoteToAdmin(ctx context.Context, username string) (domain.User, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return domain.User{}, errUserNotFound()
		}
		return domain.User{}, err
	}
	if u.Role == domain.RoleAdmin {
		return toDomain(u), nil
	}
	u.Role = domain.RoleAdmin
	u.UpdatedAt = s.clk.Now()
	if err := s.repo.Update(ctx, u); err != nil {
		return domain.User{}, err
	}
	return toDomain(u), nil
}

func (s *Service) hashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), s.PasswordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", errValidation("password", "must be at most 72 bytes")
		}
		return "", err
	}
	return string(b), nil
}

func validateUsername(s string) (string, error) {
	u := strings.TrimSpace(s)
	if u == "" {
		return "", errValidation("username", "required")
	}
	if len([]rune(u)) > maxUsernameLen {
		return "", errValidation("username", "must be at most 150 characters")
	}
	return u, nil
}

func (s *Service) validateEmail(email string) error {
	if email == "" {
		return errValidation("email", "required")
	}
	if err := s.Validate.Var(email, "required,email"); err != nil {
		return errValidation("email", "must be a valid email address")
	}
	return nil
}

func normalizePhone(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func toDomain(u userrepo.User) domain.User {
	return domain.User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		PhoneNumber: u.PhoneNumber,
		Role:        u.Role,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
