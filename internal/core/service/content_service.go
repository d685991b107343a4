package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/clock"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const maxPageTitle = 200

type ContentService struct {
	pages     port.PageRepository
	publisher port.EventPublisher
	clock     clock.Clock
	log       logrus.FieldLogger
}

func NewContentService(d Deps) *ContentService {
	return &ContentService{pages: d.Pages, publisher: d.Publisher, clock: d.clock(), log: d.logger()}
}

type SavePageInput struct {
	Slug  string
	Title string
	Body  string
	// ExpectedVersion is 0 to create the page.
	ExpectedVersion int
}

// SavePage creates a page or updates it under optimistic locking. Saving
// does not change whether the page is published.
func (s *ContentService) SavePage(ctx context.Context, in SavePageInput) (domain.ContentPage, error) {
	if !domain.ValidSlug(in.Slug) {
		return domain.ContentPage{}, domain.ErrInvalidSlug
	}
	title := strings.TrimSpace(in.Title)
	if title == "" || len(title) > maxPageTitle {
		return domain.ContentPage{}, fmt.Errorf("%w: title is required and must be at most %d characters", domain.ErrValidation, maxPageTitle)
	}
	now := s.clock.Now()

	if in.ExpectedVersion == 0 {
		p := domain.ContentPage{
			ID:        newID(),
			Slug:      in.Slug,
			Title:     title,
			Body:      in.Body,
			Version:   1,
			UpdatedAt: now,
		}
		if err := s.pages.CreatePage(ctx, p); err != nil {
			return domain.ContentPage{}, err
		}
		s.log.WithField("slug", p.Slug).Info("page created")
		return p, nil
	}

	p, err := s.pages.GetPageBySlug(ctx, in.Slug)
	if err != nil {
		return domain.ContentPage{}, err
	}
	if p.Version != in.ExpectedVersion {
		return domain.ContentPage{}, domain.ErrVersionConflict
	}
	p.Title = title
	p.Body = in.Body
	p.UpdatedAt = now
	if err := s.pages.UpdatePage(ctx, p, in.ExpectedVersion); err != nil {
		return domain.ContentPage{}, err
	}
	p.Version = in.ExpectedVersion + 1
	s.log.WithFields(logrus.Fields{"slug": p.Slug, "version": p.Version}).Info("page saved")
	return p, nil
}

func (s *ContentService) Publish(ctx context.Context, slug string) (domain.ContentPage, error) {
	return s.setPublished(ctx, slug, true)
}

func (s *ContentService) Unpublish(ctx context.Context, slug string) (domain.ContentPage, error) {
	return s.setPublished(ctx, slug, false)
}

func (s *ContentService) setPublished(ctx context.Context, slug string, published bool) (domain.ContentPage, error) {
	p, err := s.pages.GetPageBySlug(ctx, slug)
	if err != nil {
		return domain.ContentPage{}, err
	}
	if p.Published == published {
		return p, nil
	}
	now := s.clock.Now()
	if err := s.pages.SetPublished(ctx, slug, published, now); err != nil {
		return domain.ContentPage{}, err
	}
	p.Published = published
	if published {
		p.PublishedAt = &now
		log := s.log.WithField("slug", slug)
		log.Info("page published")
		publish(ctx, s.publisher, log, RoutingPagePublished, PagePublishedEvent{Slug: slug, At: now})
	}
	return p, nil
}

// GetPublished returns a page for the storefront. Drafts are reported as
// not found.
func (s *ContentService) GetPublished(ctx context.Context, slug string) (domain.ContentPage, error) {
	if !domain.ValidSlug(slug) {
		return domain.ContentPage{}, domain.ErrNotFound
	}
	p, err := s.pages.GetPageBySlug(ctx, slug)
	if err != nil {
		return domain.ContentPage{}, err
	}
	if !p.Published {
		return domain.ContentPage{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *ContentService) GetPage(ctx context.Context, slug string) (domain.ContentPage, error) {
	p, err := s.pages.GetPageBySlug(ctx, slug)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ContentPage{}, fmt.Errorf("page %s: %w", slug, err)
	}
	return p, err
}

func (s *ContentService) ListPages(ctx context.Context) ([]domain.ContentPage, error) {
	return s.pages.ListPages(ctx)
}
