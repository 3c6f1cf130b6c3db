package shared

import "fmt"

// DomainError is the base error type for all domain errors
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// InvalidInputError indicates a missing or malformed field in an external payload
type InvalidInputError struct {
	*DomainError
}

func NewInvalidInputError(message string) *InvalidInputError {
	return &InvalidInputError{DomainError: &DomainError{Message: message}}
}

// AuthError indicates a missing bearer token or a bad callback signature
type AuthError struct {
	*DomainError
}

func NewAuthError(message string) *AuthError {
	return &AuthError{DomainError: &DomainError{Message: message}}
}

// LostRaceError indicates a conditional update matched zero rows: the pickup
// moved underneath the caller (already assigned, expired, wrong vendor, terminal).
type LostRaceError struct {
	*DomainError
}

func NewLostRaceError(message string) *LostRaceError {
	return &LostRaceError{DomainError: &DomainError{Message: message}}
}

// NotFoundError indicates the identifier does not exist in the caller's view
type NotFoundError struct {
	*DomainError
	ID string
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{
		DomainError: &DomainError{Message: fmt.Sprintf("%s %s not found", kind, id)},
		ID:          id,
	}
}

// UpstreamError indicates a store or vendor HTTP failure
type UpstreamError struct {
	*DomainError
}

func NewUpstreamError(message string) *UpstreamError {
	return &UpstreamError{DomainError: &DomainError{Message: message}}
}

// ConfigError indicates unreadable or invalid service configuration; the
// process refuses to start rather than run half-configured
type ConfigError struct {
	*DomainError
}

func NewConfigError(message string) *ConfigError {
	return &ConfigError{DomainError: &DomainError{Message: message}}
}

// ValidationError carries the offending field for 400 responses
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
