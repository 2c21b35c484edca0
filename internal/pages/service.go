package pages

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/clubroster/clubroster/internal/members"
)

// MemberLookup loads members for profile titles.
type MemberLookup interface {
	FindByID(ctx context.Context, id int64) (*members.Member, error)
}

// Resetter restores option defaults.
type Resetter interface {
	ResetDefaults(ctx context.Context) error
}

// Service installs and queries tagged pages.
type Service struct {
	repo     Repository
	members  MemberLookup
	resetter Resetter
	logger   *slog.Logger
}

// NewService constructs a Service. resetter may be nil.
func NewService(repo Repository, lookup MemberLookup, resetter Resetter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, members: lookup, resetter: resetter, logger: logger}
}

// Install creates a published page for every tag without one, then resets
// options to their defaults. It returns the pages it created.
func (s *Service) Install(ctx context.Context) ([]Page, error) {
	var created []Page
	for _, d := range Definitions {
		ids, err := s.IDsWithTag(ctx, d.Tag)
		if err != nil {
			return created, err
		}
		if len(ids) > 0 {
			continue
		}
		p, err := s.repo.Insert(ctx, Page{Slug: d.Slug, Title: d.Title, Content: d.Tag, Status: StatusPublish})
		if err != nil {
			return created, err
		}
		if p == nil {
			s.logger.Warn("page slug taken, skipping", slog.String("slug", d.Slug), slog.String("tag", d.Tag))
			continue
		}
		created = append(created, *p)
	}
	if s.resetter != nil {
		if err := s.resetter.ResetDefaults(ctx); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Uninstall deletes every page that hosts the profile.
func (s *Service) Uninstall(ctx context.Context) (int64, error) {
	return s.repo.DeleteContaining(ctx, TagProfile)
}

// IDsWithTag lists the ids of pages containing tag.
func (s *Service) IDsWithTag(ctx context.Context, tag string) ([]int64, error) {
	list, err := s.repo.PagesContaining(ctx, tag)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(list))
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// PagesWithTag lists the pages containing tag.
func (s *Service) PagesWithTag(ctx context.Context, tag string) ([]Page, error) {
	return s.repo.PagesContaining(ctx, tag)
}

// Title returns the title to show for page pageID. Profile pages viewed
// with a member parameter by someone who can edit users show that
// member's display name.
func (s *Service) Title(ctx context.Context, pageID int64, title, memberParam string, viewerCanEditUsers bool) (string, error) {
	profiles, err := s.repo.PagesContaining(ctx, TagProfile)
	if err != nil {
		return title, err
	}
	for _, p := range profiles {
		if p.ID == pageID {
			return s.ProfileTitle(ctx, title, memberParam, viewerCanEditUsers)
		}
	}
	return title, nil
}

// ProfileTitle applies the member title rule to the profile page.
func (s *Service) ProfileTitle(ctx context.Context, title, memberParam string, viewerCanEditUsers bool) (string, error) {
	memberParam = strings.TrimSpace(memberParam)
	if memberParam == "" || !viewerCanEditUsers {
		return title, nil
	}
	id, err := strconv.ParseInt(memberParam, 10, 64)
	if err != nil {
		return title, nil
	}
	m, err := s.members.FindByID(ctx, id)
	if err != nil {
		return title, err
	}
	if m == nil {
		return title, nil
	}
	if m.DisplayName != "" {
		return m.DisplayName, nil
	}
	return m.FullName(), nil
}

// Resolve returns the route serving the published page with slug.
func (s *Service) Resolve(ctx context.Context, slug string) (string, bool, error) {
	p, err := s.repo.FindBySlug(ctx, slug)
	if err != nil || p == nil || p.Status != StatusPublish {
		return "", false, err
	}
	route, ok := RouteFor(p.Content)
	return route, ok, nil
}
