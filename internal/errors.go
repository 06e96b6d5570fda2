package internal

import "errors"

var (
	ErrDuplicateCode      = errors.New("short code already exists")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique short code")
	ErrLinkNotFound       = errors.New("link not found")
	ErrInvalidURL         = errors.New("invalid destination URL")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized: admin access required")
)
