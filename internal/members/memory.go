package members

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryRepository is a Repository kept in process memory. Lookups return
// copies so callers cannot mutate stored members.
type MemoryRepository struct {
	mu      sync.RWMutex
	nextID  int64
	members []*Member
}

// NewMemoryRepository returns a repository seeded with ms. Members without
// an id are numbered in order.
func NewMemoryRepository(ms ...*Member) *MemoryRepository {
	r := &MemoryRepository{}
	for _, m := range ms {
		cp := cloneMember(m)
		if cp.ID == 0 {
			cp.ID = r.nextID + 1
		}
		if cp.ID > r.nextID {
			r.nextID = cp.ID
		}
		r.members = append(r.members, cp)
	}
	return r
}

var _ Repository = (*MemoryRepository)(nil)

func (r *MemoryRepository) FindByID(_ context.Context, id int64) (*Member, error) {
	return r.find(func(m *Member) bool { return m.ID == id }), nil
}

func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*Member, error) {
	if email == "" {
		return nil, nil
	}
	return r.find(func(m *Member) bool { return strings.EqualFold(m.Email, email) }), nil
}

func (r *MemoryRepository) FindByLogin(_ context.Context, login string) (*Member, error) {
	if login == "" {
		return nil, nil
	}
	return r.find(func(m *Member) bool { return m.Login == login }), nil
}

func (r *MemoryRepository) ListAll(_ context.Context) ([]*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, cloneMember(m))
	}
	return out, nil
}

func (r *MemoryRepository) Meta(_ context.Context, memberID int64, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m := r.lookup(memberID); m != nil {
		return m.Fields[key], nil
	}
	return "", nil
}

func (r *MemoryRepository) Create(_ context.Context, reg Registration) (*Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if m.Login == reg.Login || (reg.Email != "" && strings.EqualFold(m.Email, reg.Email)) {
			return nil, ErrDuplicate
		}
	}
	r.nextID++
	m := &Member{
		ID:           r.nextID,
		Login:        reg.Login,
		Email:        reg.Email,
		DisplayName:  reg.Login,
		PasswordHash: reg.PasswordHash,
		Role:         RoleMember,
		Registered:   time.Now().UTC(),
		Fields:       make(map[string]string, len(reg.Fields)),
	}
	for k, v := range reg.Fields {
		m.Fields[k] = v
	}
	r.members = append(r.members, m)
	return cloneMember(m), nil
}

func (r *MemoryRepository) UpdateFields(_ context.Context, memberID int64, fields map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.lookup(memberID)
	if m == nil {
		return ErrNotFound
	}
	for k, v := range fields {
		m.Fields[k] = v
	}
	return nil
}

func (r *MemoryRepository) SetMeta(ctx context.Context, memberID int64, key, value string) error {
	return r.UpdateFields(ctx, memberID, map[string]string{key: value})
}

func (r *MemoryRepository) UpdatePassword(_ context.Context, memberID int64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.lookup(memberID)
	if m == nil {
		return ErrNotFound
	}
	m.PasswordHash = hash
	return nil
}

func (r *MemoryRepository) find(match func(*Member) bool) *Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.members {
		if match(m) {
			return cloneMember(m)
		}
	}
	return nil
}

func (r *MemoryRepository) lookup(id int64) *Member {
	for _, m := range r.members {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func cloneMember(m *Member) *Member {
	cp := *m
	cp.Fields = make(map[string]string, len(m.Fields))
	for k, v := range m.Fields {
		cp.Fields[k] = v
	}
	return &cp
}
