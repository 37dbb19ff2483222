package protocol

import (
	"errors"

	"github.com/groupflight/flightgroup/internal/model"
)

// ErrorCode is the status carried in every response body
type ErrorCode int

const (
	CodeSuccess           ErrorCode = 0
	CodeUnknownError      ErrorCode = 1
	CodeInvalidID         ErrorCode = 2
	CodeInvalidSecretID   ErrorCode = 3
	CodeDeniedGroupAccess ErrorCode = 4
	CodeMissingData       ErrorCode = 5
	CodeNoOp              ErrorCode = 6
)

var codeNames = map[ErrorCode]string{
	CodeSuccess:           "success",
	CodeUnknownError:      "unknown_error",
	CodeInvalidID:         "invalid_id",
	CodeInvalidSecretID:   "invalid_secret_id",
	CodeDeniedGroupAccess: "denied_group_access",
	CodeMissingData:       "missing_data",
	CodeNoOp:              "no_op",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown_error"
}

// CodeFor maps a service error onto the status code reported to the client
func CodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeSuccess
	case errors.Is(err, model.ErrNameTooShort),
		errors.Is(err, model.ErrMissingData),
		errors.Is(err, model.ErrInvalidWaypoint):
		return CodeMissingData
	case errors.Is(err, model.ErrPilotNotFound),
		errors.Is(err, model.ErrGroupNotFound),
		errors.Is(err, model.ErrSessionNotFound):
		return CodeInvalidID
	case errors.Is(err, model.ErrSecretMismatch):
		return CodeInvalidSecretID
	case errors.Is(err, model.ErrNotGroupMember):
		return CodeDeniedGroupAccess
	case errors.Is(err, model.ErrNotInGroup),
		errors.Is(err, model.ErrAlreadyInGroup):
		return CodeNoOp
	default:
		// Includes ErrPilotIDTaken
		return CodeUnknownError
	}
}
