// Package avatar resolves member profile pictures and issues upload URLs
// for new ones.
package avatar

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/clubroster/clubroster/internal/members"
)

// Avatar is the resolved picture of a member.
type Avatar struct {
	URL    string
	Markup string
}

// Resolver looks members up by id, record or email.
type Resolver struct {
	store members.Store
}

// NewResolver constructs a Resolver on store.
func NewResolver(store members.Store) *Resolver {
	return &Resolver{store: store}
}

type memberIDer interface {
	MemberID() int64
}

// Resolve finds the member identified by identifier and returns its
// profile_picture URL. Markup is markup when non-empty, else fallback.
//
// Integers of any width and numeric strings are ids; values with a
// MemberID method are looked up by that id; other strings are emails.
// Unknown identifiers resolve to an empty URL, never an error.
func (r *Resolver) Resolve(ctx context.Context, identifier any, markup, fallback string) (Avatar, error) {
	out := Avatar{Markup: markup}
	if out.Markup == "" {
		out.Markup = fallback
	}

	m, err := r.lookup(ctx, identifier)
	if err != nil {
		return out, err
	}
	if m == nil {
		return out, nil
	}
	raw, err := r.store.Meta(ctx, m.ID, members.MetaProfilePicture)
	if err != nil {
		return out, fmt.Errorf("avatar: profile picture: %w", err)
	}
	out.URL = cleanURL(raw)
	return out, nil
}

func (r *Resolver) lookup(ctx context.Context, identifier any) (*members.Member, error) {
	var (
		m   *members.Member
		err error
	)
	if id, ok := numericID(identifier); ok {
		m, err = r.store.FindByID(ctx, id)
	} else {
		switch v := identifier.(type) {
		case *members.Member:
			if v == nil || v.ID == 0 {
				return nil, nil
			}
			m, err = r.store.FindByID(ctx, v.ID)
		case memberIDer:
			id := v.MemberID()
			if id == 0 {
				return nil, nil
			}
			m, err = r.store.FindByID(ctx, id)
		case string:
			m, err = r.store.FindByEmail(ctx, strings.TrimSpace(v))
		default:
			return nil, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("avatar: find member: %w", err)
	}
	return m, nil
}

func numericID(identifier any) (int64, bool) {
	switch v := identifier.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return fromUnsigned(uint64(v))
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return fromUnsigned(v)
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil
	}
	return 0, false
}

func fromUnsigned(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// cleanURL drops values that are not http(s) or site-relative URLs.
func cleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		if u.Host == "" {
			return ""
		}
		return u.String()
	case u.Scheme == "" && u.Host == "" && strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//"):
		return u.String()
	}
	return ""
}
