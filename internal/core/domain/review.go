package domain

import "time"

type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

type Review struct {
	ID         string
	ProductID  string
	AuthorName string
	Email      string
	Rating     int
	Title      string
	Body       string
	Status     ReviewStatus
	CreatedAt  time.Time
}

// RatingSummary aggregates approved reviews. Histogram[i] counts reviews
// with rating i+1.
type RatingSummary struct {
	Count     int
	Average   float64
	Histogram [5]int
}
