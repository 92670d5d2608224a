package rbac

import "errors"

var (
	ErrNotFound        = errors.New("rbac: not found")
	ErrConflict        = errors.New("rbac: resource conflict")
	ErrInvalidArgument = errors.New("rbac: invalid argument")
	ErrUnauthorized    = errors.New("rbac: unauthorized")
)
