package firefly

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoAccount is returned when no source account can be resolved.
var ErrNoAccount = errors.New("no asset account available")

// duplicateFieldPrefix is the validation message Firefly III attaches to the
// offending field when error_if_duplicate_hash rejects a transaction.
const duplicateFieldPrefix = "duplicate of transaction"

// APIError is a non-2xx response from Firefly III.
type APIError struct {
	StatusCode int
	Message    string
	Errors     map[string][]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("firefly API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("firefly API error (status %d): %s", e.StatusCode, e.Message)
}

// DuplicateMatch describes how a rejection was recognised as a duplicate.
type DuplicateMatch int

const (
	// NotDuplicate means the error is not a duplicate rejection.
	NotDuplicate DuplicateMatch = iota
	// DuplicateByField means a field-level validation error named the duplicate.
	DuplicateByField
	// DuplicateByMessage means only the top-level message mentioned a duplicate.
	// This depends on Firefly's wording and is the fragile path.
	DuplicateByMessage
)

// ClassifyDuplicate inspects a 422 response for a duplicate rejection,
// preferring the structured field errors over the free-text message.
func ClassifyDuplicate(err error) DuplicateMatch {
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusUnprocessableEntity {
		return NotDuplicate
	}

	for _, messages := range apiErr.Errors {
		for _, msg := range messages {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(msg)), duplicateFieldPrefix) {
				return DuplicateByField
			}
		}
	}

	if strings.Contains(strings.ToLower(apiErr.Message), "duplicate") {
		return DuplicateByMessage
	}
	return NotDuplicate
}

// IsDuplicate reports whether err is a duplicate rejection.
func IsDuplicate(err error) bool {
	return ClassifyDuplicate(err) != NotDuplicate
}

// IsValidation reports whether err is a 422 validation rejection.
func IsValidation(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusUnprocessableEntity
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
