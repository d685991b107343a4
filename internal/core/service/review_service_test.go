package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func reviewInput(email string, rating int) ReviewInput {
	return ReviewInput{ProductID: "p1", AuthorName: "Linus", Email: email, Rating: rating, Title: "Solid", Body: "Works as described."}
}

func TestSubmitReview_PendingUntilModerated(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 1)
	svc := NewReviewService(f.deps)
	ctx := context.Background()

	r, err := svc.SubmitReview(ctx, reviewInput("a@example.com", 4))
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewStatusPending, r.Status)
	assert.Equal(t, []string{RoutingReviewSubmitted}, f.pub.keys())

	approved, err := svc.ListApproved(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, approved)
	pending, err := svc.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = svc.Moderate(ctx, r.ID, true)
	require.NoError(t, err)
	approved, err = svc.ListApproved(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func TestSubmitReview_Rejections(t *testing.T) {
	tests := []struct {
		name string
		in   ReviewInput
		want error
	}{
		{"rating too low", reviewInput("a@example.com", 0), domain.ErrInvalidRating},
		{"rating too high", reviewInput("a@example.com", 6), domain.ErrInvalidRating},
		{"empty body", ReviewInput{ProductID: "p1", AuthorName: "L", Email: "a@example.com", Rating: 3}, domain.ErrValidation},
		{"long body", ReviewInput{ProductID: "p1", AuthorName: "L", Email: "a@example.com", Rating: 3, Body: strings.Repeat("x", maxReviewBody+1)}, domain.ErrValidation},
		{"unknown product", ReviewInput{ProductID: "zz", AuthorName: "L", Email: "a@example.com", Rating: 3, Body: "ok"}, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.addProduct("p1", 1000, 1)
			_, err := NewReviewService(f.deps).SubmitReview(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubmitReview_OnePerEmail(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 1)
	svc := NewReviewService(f.deps)

	_, err := svc.SubmitReview(context.Background(), reviewInput("a@example.com", 4))
	require.NoError(t, err)
	_, err = svc.SubmitReview(context.Background(), reviewInput("A@Example.com", 2))
	assert.ErrorIs(t, err, domain.ErrDuplicateReview)
}

func TestSummary_CountsApprovedOnly(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 1)
	svc := NewReviewService(f.deps)
	ctx := context.Background()

	for i, rating := range []int{5, 4, 4, 1} {
		r, err := svc.SubmitReview(ctx, reviewInput(string(rune('a'+i))+"@example.com", rating))
		require.NoError(t, err)
		_, err = svc.Moderate(ctx, r.ID, rating != 1)
		require.NoError(t, err)
	}

	sum, err := svc.Summary(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Count)
	assert.Equal(t, 4.3, sum.Average)
	assert.Equal(t, [5]int{0, 0, 0, 2, 1}, sum.Histogram)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, domain.RatingSummary{}, summarize([5]int{}))
	assert.Equal(t, 3.0, summarize([5]int{1, 0, 0, 0, 1}).Average)
	assert.Equal(t, 2.7, summarize([5]int{0, 1, 2, 0, 0}).Average)
}
