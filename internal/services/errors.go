// internal/services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/javajoker/broadcast-backend/internal/models"
	"github.com/javajoker/broadcast-backend/internal/repository"
)

var (
	ErrNotFound     = repository.ErrNotFound
	ErrForbidden    = errors.New("forbidden")
	ErrPrecondition = errors.New("precondition failed")
	ErrInvalidState = errors.New("invalid state")
	// ErrTooLateToQuote is an invalid-state error raised once the pricing
	// deadline has passed.
	ErrTooLateToQuote = fmt.Errorf("too late to quote: %w", ErrInvalidState)
	ErrStaleQuote     = errors.New("quote validity window has passed")
	ErrRaceLost       = errors.New("broadcast already resolved")
)

func precondition(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   uuid.UUID
	Type models.UserType
}

func (a Actor) IsAdmin() bool {
	return a.Type == models.UserTypeAdmin
}

func (a Actor) IsCustomer() bool {
	return a.Type == models.UserTypeCustomer
}

func (a Actor) IsMerchant() bool {
	return a.Type == models.UserTypeMerchant
}
