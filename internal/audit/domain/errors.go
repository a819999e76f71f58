package domain

import apperrors "github.com/allisson/guardrail/internal/errors"

var (
	errInvalidLevel  = apperrors.New("invalid audit level")
	errInvalidType   = apperrors.New("invalid audit event type")
	errMissingAction = apperrors.New("audit event action is required")
)
