package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/clock"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	maxReviewTitle = 120
	maxReviewBody  = 4000
)

type ReviewService struct {
	reviews   port.ReviewRepository
	catalog   port.CatalogRepository
	publisher port.EventPublisher
	clock     clock.Clock
	log       logrus.FieldLogger
}

func NewReviewService(d Deps) *ReviewService {
	return &ReviewService{
		reviews:   d.Reviews,
		catalog:   d.Catalog,
		publisher: d.Publisher,
		clock:     d.clock(),
		log:       d.logger(),
	}
}

type ReviewInput struct {
	ProductID  string
	AuthorName string
	Email      string
	Rating     int
	Title      string
	Body       string
}

// SubmitReview stores a review awaiting moderation. Each email may review a
// product once.
func (s *ReviewService) SubmitReview(ctx context.Context, in ReviewInput) (domain.Review, error) {
	title, body := strings.TrimSpace(in.Title), strings.TrimSpace(in.Body)
	switch {
	case in.Rating < 1 || in.Rating > 5:
		return domain.Review{}, domain.ErrInvalidRating
	case strings.TrimSpace(in.AuthorName) == "":
		return domain.Review{}, fmt.Errorf("%w: author name is required", domain.ErrValidation)
	case !validEmail(in.Email):
		return domain.Review{}, fmt.Errorf("%w: a valid email is required", domain.ErrValidation)
	case body == "":
		return domain.Review{}, fmt.Errorf("%w: review text is required", domain.ErrValidation)
	case len(title) > maxReviewTitle || len(body) > maxReviewBody:
		return domain.Review{}, fmt.Errorf("%w: review is too long", domain.ErrValidation)
	}

	if _, err := s.catalog.GetProduct(ctx, in.ProductID); err != nil {
		return domain.Review{}, err
	}

	r := domain.Review{
		ID:         newID(),
		ProductID:  in.ProductID,
		AuthorName: strings.TrimSpace(in.AuthorName),
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		Rating:     in.Rating,
		Title:      title,
		Body:       body,
		Status:     domain.ReviewStatusPending,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.reviews.CreateReview(ctx, r); err != nil {
		return domain.Review{}, err
	}
	log := s.log.WithFields(logrus.Fields{"review_id": r.ID, "product_id": r.ProductID, "rating": r.Rating})
	log.Info("review submitted")
	publish(ctx, s.publisher, log, RoutingReviewSubmitted, ReviewSubmittedEvent{
		ReviewID:  r.ID,
		ProductID: r.ProductID,
		Rating:    r.Rating,
	})
	return r, nil
}

// Moderate approves or rejects a review.
func (s *ReviewService) Moderate(ctx context.Context, id string, approve bool) (domain.Review, error) {
	r, err := s.reviews.GetReview(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	status := domain.ReviewStatusRejected
	if approve {
		status = domain.ReviewStatusApproved
	}
	if r.Status == status {
		return r, nil
	}
	if err := s.reviews.SetReviewStatus(ctx, id, status); err != nil {
		return domain.Review{}, err
	}
	r.Status = status
	s.log.WithFields(logrus.Fields{"review_id": id, "status": status}).Info("review moderated")
	return r, nil
}

func (s *ReviewService) ListApproved(ctx context.Context, productID string) ([]domain.Review, error) {
	return s.reviews.ListReviews(ctx, productID, domain.ReviewStatusApproved)
}

func (s *ReviewService) ListPending(ctx context.Context) ([]domain.Review, error) {
	return s.reviews.ListReviews(ctx, "", domain.ReviewStatusPending)
}

// Summary aggregates the approved reviews of a product. The average is
// rounded to one decimal and is zero when there are no reviews.
func (s *ReviewService) Summary(ctx context.Context, productID string) (domain.RatingSummary, error) {
	hist, err := s.reviews.RatingHistogram(ctx, productID)
	if err != nil {
		return domain.RatingSummary{}, err
	}
	return summarize(hist), nil
}

func summarize(hist [5]int) domain.RatingSummary {
	sum := domain.RatingSummary{Histogram: hist}
	total := 0
	for i, n := range hist {
		sum.Count += n
		total += (i + 1) * n
	}
	if sum.Count > 0 {
		sum.Average = math.Round(float64(total)/float64(sum.Count)*10) / 10
	}
	return sum
}
