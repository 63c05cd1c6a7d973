// Package errors provides structured grid errors with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Window transitions
	CodeGridInvalidPage     Code = "GRID_INVALID_PAGE"
	CodeGridInvalidPageSize Code = "GRID_INVALID_PAGE_SIZE"
	CodeGridInvalidSort     Code = "GRID_INVALID_SORT"
	CodeGridClosed          Code = "GRID_CLOSED"

	// Remote fetches
	CodeGridFetchFailed       Code = "GRID_FETCH_FAILED"
	CodeGridPayloadInvalid    Code = "GRID_PAYLOAD_INVALID"
	CodeGridRemoteUnavailable Code = "GRID_REMOTE_UNAVAILABLE"

	// Column visibility persistence
	CodeGridVisibilityStore Code = "GRID_VISIBILITY_STORE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeGridInvalidPage, CodeGridInvalidPageSize, CodeGridInvalidSort:
		return codes.InvalidArgument
	case CodeGridClosed:
		return codes.FailedPrecondition
	case CodeGridRemoteUnavailable:
		return codes.Unavailable
	case CodeGridPayloadInvalid:
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// CodeFromGRPC classifies a data source status code. Transient transport
// failures map to CodeGridRemoteUnavailable; everything else is a failed
// fetch.
func CodeFromGRPC(c codes.Code) Code {
	switch c {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return CodeGridRemoteUnavailable
	case codes.DataLoss:
		return CodeGridPayloadInvalid
	case codes.InvalidArgument, codes.OutOfRange:
		return CodeGridFetchFailed
	default:
		return CodeGridFetchFailed
	}
}
