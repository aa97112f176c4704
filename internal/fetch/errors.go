package fetch

import "errors"

var (
	ErrFetch       = errors.New("fetch failed")
	ErrInsecureURL = errors.New("insecure URL")
)
