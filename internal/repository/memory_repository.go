package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SP23-BSE-106/grain/internal/domain"
)

// MemoryUserRepository keeps accounts in process memory. It backs local
// development without Postgres and the service tests.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string
	now     func() time.Time
	// Err, when set, is returned by every call.
	Err error
}

// NewMemoryUserRepository returns an empty repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    map[string]*domain.User{},
		byEmail: map[string]string{},
		now:     time.Now,
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return domain.ErrEmailTaken
	}
	now := r.now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	err := r.Err
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryUserRepository) List(_ context.Context, filter UserFilter) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	result := []domain.User{}
	for _, u := range r.byID {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Email < result[j].Email
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return []domain.User{}, nil
	}
	result = result[offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryUserRepository) UpdateRole(_ context.Context, id string, role domain.Role) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = r.now().UTC()
	out := *u
	return &out, nil
}

// MemorySessionRepository is the in-process counterpart of the Redis store.
type MemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]domain.RefreshSession
	now      func() time.Time
	// Err, when set, is returned by every call.
	Err error
}

// NewMemorySessionRepository returns an empty store. A nil clock uses time.Now.
func NewMemorySessionRepository(now func() time.Time) *MemorySessionRepository {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionRepository{sessions: map[string]domain.RefreshSession{}, now: now}
}

func (r *MemorySessionRepository) Save(_ context.Context, session domain.RefreshSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sessions[session.TokenID] = session
	return nil
}

func (r *MemorySessionRepository) Consume(_ context.Context, tokenID string) (*domain.RefreshSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	s, ok := r.sessions[tokenID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	delete(r.sessions, tokenID)
	if !r.now().Before(s.ExpiresAt) {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	delete(r.sessions, tokenID)
	return nil
}

func (r *MemorySessionRepository) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	n := 0
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// Live counts unexpired sessions for userID.
func (r *MemorySessionRepository) Live(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && r.now().Before(s.ExpiresAt) {
			n++
		}
	}
	return n
}

var (
	_ UserRepository    = (*MemoryUserRepository)(nil)
	_ SessionRepository = (*MemorySessionRepository)(nil)
)
