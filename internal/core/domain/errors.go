package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrValidation            = errors.New("validation failed")
	ErrVersionConflict       = errors.New("version conflict")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrDuplicateRequest      = errors.New("duplicate request")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrDiscountTooLarge      = errors.New("discount exceeds subtotal")
	ErrInvalidOption         = errors.New("invalid customization option")
	ErrEventFull             = errors.New("event is full")
	ErrEventNotOpen          = errors.New("event is not open for registration")
	ErrDuplicateRegistration = errors.New("already registered")
	ErrDuplicateReview       = errors.New("review already submitted")
	ErrInvalidRating         = errors.New("rating must be between 1 and 5")
	ErrInvalidSlug           = errors.New("invalid slug")
	ErrDuplicateSKU          = errors.New("sku already exists")
	ErrDuplicateSlug         = errors.New("slug already exists")
	ErrCapacityBelowHeld     = errors.New("capacity below held seats")
	ErrShuttingDown          = errors.New("shutting down")
)
