package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/clubroster/clubroster/internal/members"
)

// ErrNotFound indicates that the member does not exist.
var ErrNotFound = errors.New("rbac: member not found")

// MemberLookup is the slice of the member store the service needs.
type MemberLookup interface {
	FindByID(ctx context.Context, id int64) (*members.Member, error)
}

// Service resolves member capabilities.
type Service struct {
	members MemberLookup
}

// NewService constructs a Service backed by the member store.
func NewService(lookup MemberLookup) *Service {
	return &Service{members: lookup}
}

// Principal resolves the role and capabilities of memberID.
func (s *Service) Principal(ctx context.Context, memberID int64) (Principal, error) {
	m, err := s.members.FindByID(ctx, memberID)
	if err != nil {
		return Principal{}, fmt.Errorf("rbac: load member %d: %w", memberID, err)
	}
	if m == nil {
		return Principal{}, ErrNotFound
	}
	return Principal{MemberID: m.ID, Name: m.FullName(), Role: m.Role, Capabilities: CapabilitiesForRole(m.Role)}, nil
}

// EffectivePermissions returns the capabilities held by memberID.
func (s *Service) EffectivePermissions(ctx context.Context, memberID int64) ([]string, error) {
	p, err := s.Principal(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return p.Capabilities, nil
}

// Can reports whether memberID holds capability. Unknown members hold nothing.
func (s *Service) Can(ctx context.Context, memberID int64, capability string) (bool, error) {
	p, err := s.Principal(ctx, memberID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.Has(capability), nil
}
