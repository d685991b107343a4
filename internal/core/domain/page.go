package domain

import (
	"regexp"
	"time"
)

const MaxSlugLength = 80

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a lowercase, hyphen-separated url segment.
func ValidSlug(s string) bool {
	return len(s) <= MaxSlugLength && slugPattern.MatchString(s)
}

// ContentPage is an editable storefront page such as "about" or "faq".
type ContentPage struct {
	ID          string
	Slug        string
	Title       string
	Body        string
	Published   bool
	Version     int
	UpdatedAt   time.Time
	PublishedAt *time.Time
}
