// Package errors provides structured error handling for the worldstate services.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Query validation errors
	CodeQueryWorldIDEmpty     Code = "QUERY_WORLD_ID_EMPTY"
	CodeQueryRadiusInvalid    Code = "QUERY_RADIUS_INVALID"
	CodeQueryBoundsInvalid    Code = "QUERY_BOUNDS_INVALID"
	CodeQueryShapeConflict    Code = "QUERY_SHAPE_CONFLICT"
	CodeQueryShapeMissing     Code = "QUERY_SHAPE_MISSING"
	CodeQueryLimitInvalid     Code = "QUERY_LIMIT_INVALID"
	CodeQueryOffsetInvalid    Code = "QUERY_OFFSET_INVALID"
	CodeQueryEntityTypeEmpty  Code = "QUERY_ENTITY_TYPE_EMPTY"
	CodeQueryEntityTypesEmpty Code = "QUERY_ENTITY_TYPES_EMPTY"
	CodeQuerySearchTermEmpty  Code = "QUERY_SEARCH_TERM_EMPTY"

	// Query execution errors
	CodeQueryExecution      Code = "QUERY_EXECUTION_FAILED"
	CodeQueryHandlerMissing Code = "QUERY_HANDLER_MISSING"

	// Projection errors
	CodeProjectionApply        Code = "PROJECTION_APPLY_FAILED"
	CodeProjectionEventInvalid Code = "PROJECTION_EVENT_INVALID"
	CodeProjectionNotRunning   Code = "PROJECTION_NOT_RUNNING"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeQueryWorldIDEmpty,
		CodeQueryRadiusInvalid,
		CodeQueryBoundsInvalid,
		CodeQueryShapeConflict,
		CodeQueryShapeMissing,
		CodeQueryLimitInvalid,
		CodeQueryOffsetInvalid,
		CodeQueryEntityTypeEmpty,
		CodeQueryEntityTypesEmpty,
		CodeQuerySearchTermEmpty,
		CodeProjectionEventInvalid:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeProjectionNotRunning:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Internal
	}
}

// IsValidation reports whether the code belongs to the query validation family.
// Validation failures are caller errors raised at descriptor construction and
// are never retried.
func (c Code) IsValidation() bool {
	return c.GRPCCode() == codes.InvalidArgument
}
