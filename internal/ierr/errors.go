package ierr

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("resource not found")
	ErrConflict         = errors.New("resource conflict")
	ErrStoreUnavailable = errors.New("license store unavailable")
	ErrInternalServer   = errors.New("internal server error")

	ErrInvalidAdminSecret = errors.New("not authorized")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenInvalidClaims = errors.New("token contains invalid claims type")
)
