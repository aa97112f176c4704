package profile

import "errors"

var (
	ErrInvalidProfile  = errors.New("invalid profile")
	ErrProfileNotFound = errors.New("profile not found")
	ErrLoad            = errors.New("profile load failed")
)
