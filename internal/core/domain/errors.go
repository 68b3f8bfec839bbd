package domain

import (
	"errors"
	"fmt"
	"time"
)

// --- ERREURS DU DOMAINE ---

// ErrAuthRequired : le type de feed exige une identité que l'appelant n'a pas
var ErrAuthRequired = errors.New("authentication required")

// ValidationError : entrée client invalide (owner id, cursor, page size...)
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitedError : le governor a refusé la requête
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RetryAfterSeconds arrondit au supérieur, minimum 1
func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// ErrorKind classe une erreur pour les adapters primaires
type ErrorKind int

const (
	KindUnexpected ErrorKind = iota
	KindValidation
	KindAuthRequired
	KindRateLimited
)

func KindOf(err error) ErrorKind {
	var vErr *ValidationError
	var rlErr *RateLimitedError
	switch {
	case errors.As(err, &vErr):
		return KindValidation
	case errors.Is(err, ErrAuthRequired):
		return KindAuthRequired
	case errors.As(err, &rlErr):
		return KindRateLimited
	default:
		return KindUnexpected
	}
}
