package userrepo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/ports/out/userrepo"
)

// Repo is an in-memory implementation of userrepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex

	byID         map[domain.UserID]userrepo.User
	idByUsername map[string]domain.UserID
}

func NewRepo() *Repo {
	return &Repo{
		byID:         make(map[domain.UserID]userrepo.User),
		idByUsername: make(map[string]domain.UserID),
	}
}

func (r *Repo) Create(ctx context.Context, u userrepo.User) error {
	_ = ctx
	if u.ID == "" {
		return errors.New("user id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[u.ID]; ok {
		return userrepo.ErrAlreadyExists
	}
	if _, ok := r.idByUsername[usernameKey(u.Username)]; ok {
		return userrepo.ErrUsernameTaken
	}

	r.byID[u.ID] = cloneUser(u)
	r.idByUsername[usernameKey(u.Username)] = u.ID
	return nil
}

func (r *Repo) Update(ctx context.Context, u userrepo.User) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[u.ID]
	if !ok {
		return userrepo.ErrNotFound
	}
	oldKey, newKey := usernameKey(existing.Username), usernameKey(u.Username)
	if oldKey != newKey {
		if _, taken := r.idByUsername[newKey]; taken {
			return userrepo.ErrUsernameTaken
		}
		delete(r.idByUsername, oldKey)
		r.idByUsername[newKey] = u.ID
	}
	u.CreatedAt = existing.CreatedAt
	r.byID[u.ID] = cloneUser(u)
	return nil
}

func (r *Repo) Delete(ctx context.Context, id domain.UserID) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[id]
	if !ok {
		return userrepo.ErrNotFound
	}
	delete(r.idByUsername, usernameKey(existing.Username))
	delete(r.byID, id)
	return nil
}

func (r *Repo) GetByID(ctx context.Context, id domain.UserID) (userrepo.User, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return userrepo.User{}, userrepo.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (userrepo.User, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idByUsername[usernameKey(username)]
	if !ok {
		return userrepo.User{}, userrepo.ErrNotFound
	}
	u, ok := r.byID[id]
	if !ok {
		return userrepo.User{}, userrepo.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *Repo) List(ctx context.Context, f userrepo.ListFilter) ([]userrepo.User, error) {
	_ = ctx
	out := r.filtered(f)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []userrepo.User{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *Repo) Count(ctx context.Context, f userrepo.ListFilter) (int, error) {
	_ = ctx
	return len(r.filtered(f)), nil
}

func (r *Repo) filtered(f userrepo.ListFilter) []userrepo.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]userrepo.User, 0, len(r.byID))
	for _, u := range r.byID {
		if f.Role != nil && u.Role != *f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if needle != "" && !matchesSearch(u, needle) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sortUsersByUsername(out)
	return out
}

func matchesSearch(u userrepo.User, needle string) bool {
	for _, hay := range []string{u.Username, u.Email, u.FirstName, u.LastName} {
		if strings.Contains(strings.ToLower(hay), needle) {
			return true
		}
	}
	return false
}

// Usernames are case-sensitive.
func usernameKey(s string) string {
	return s
}

func cloneUser(u userrepo.User) userrepo.User {
	out := u
	if u.PhoneNumber != nil {
		v := *u.PhoneNumber
		out.PhoneNumber = &v
	}
	return out
}

func sortUsersByUsername(us []userrepo.User) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].Username == us[j].Username {
			return string(us[i].ID) < string(us[j].ID)
		}
		return us[i].Username < us[j].Username
	})
}
