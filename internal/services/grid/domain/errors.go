package domain

import (
	"errors"
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/pricedesk/internal/platform/errors"
)

var (
	// ErrClosed is returned by commands issued after Close.
	ErrClosed = apperrors.New(apperrors.CodeGridClosed, "grid controller is closed")
	// ErrFetcherRequired indicates a controller was built without a data source.
	ErrFetcherRequired = errors.New("grid fetcher is required")
)

// InvalidTransitionError rejects a command whose argument is out of range.
// Nothing about the window changes when it is returned.
type InvalidTransitionError struct {
	Field  string
	Value  string
	Reason string
}

// Error returns the rejection message.
func (e *InvalidTransitionError) Error() string {
	if e == nil {
		return "invalid grid transition"
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// DomainError converts e into a coded platform error.
func (e *InvalidTransitionError) DomainError() *apperrors.Error {
	code := apperrors.CodeUnknown
	key := ""
	switch e.Field {
	case "page":
		code, key = apperrors.CodeGridInvalidPage, "Page"
	case "page size":
		code, key = apperrors.CodeGridInvalidPageSize, "PageSize"
	case "sort":
		code, key = apperrors.CodeGridInvalidSort, "Sort"
	}
	return &apperrors.Error{
		Code:     code,
		Message:  e.Error(),
		Metadata: map[string]string{key: e.Value},
		Cause:    e,
	}
}

func invalidPage(page int) error {
	return &InvalidTransitionError{Field: "page", Value: strconv.Itoa(page), Reason: "must be >= 0"}
}

func invalidPageSize(size int, allowed []int) error {
	return &InvalidTransitionError{Field: "page size", Value: strconv.Itoa(size), Reason: fmt.Sprintf("allowed sizes are %v", allowed)}
}

// FetchFailure is a fetch of the visible page that was rejected or returned
// an unreadable payload.
type FetchFailure struct {
	Code  apperrors.Code
	Query Query
	Err   error
}

// Error returns the failure message.
func (e *FetchFailure) Error() string {
	if e == nil {
		return "grid fetch failed"
	}
	return fmt.Sprintf("fetch page %d (size %d): %v", e.Query.Page, e.Query.PageSize, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchFailure) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UserMessage renders the localized message for the failure.
func (e *FetchFailure) UserMessage(locale string) string {
	return apperrors.New(e.Code, e.Error()).UserMessage(locale)
}

func newFetchFailure(q Query, err error) *FetchFailure {
	code := apperrors.CodeGridFetchFailed
	switch {
	case errors.Is(err, ErrPayloadInvalid):
		code = apperrors.CodeGridPayloadInvalid
	case apperrors.CodeOf(err) != apperrors.CodeUnknown:
		code = apperrors.CodeOf(err)
	}
	return &FetchFailure{Code: code, Query: q, Err: err}
}
