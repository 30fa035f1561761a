package apperrors

import (
	"errors"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrHasDependents        = errors.New("record has dependent rows")
	ErrInvalidInput         = errors.New("invalid input")
	ErrQueryTooShort        = errors.New("search query must be at least 2 characters")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrForbidden            = errors.New("forbidden")
	ErrAccountDeleted       = errors.New("account deleted")
	ErrRestoreWindowExpired = errors.New("account restore window has expired")
	ErrProviderUnavailable  = errors.New("places provider is not configured")
	ErrProviderFailed       = errors.New("places provider request failed")
	ErrDatabaseUnavailable  = errors.New("database unavailable")
)

// NonDiningVenueError is returned when an import candidate is not a dining
// establishment. Reasons lists every rule the candidate failed.
type NonDiningVenueError struct {
	Name    string
	Reasons []string
}

func (e *NonDiningVenueError) Error() string {
	return "not a dining venue: " + strings.Join(e.Reasons, "; ")
}

// AsNonDiningVenue unwraps err into a *NonDiningVenueError if it is one.
func AsNonDiningVenue(err error) (*NonDiningVenueError, bool) {
	var target *NonDiningVenueError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
