package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenRequestFailed indicates the token endpoint did not answer 200.
	ErrTokenRequestFailed = errors.New("failed to get token")

	// ErrMissingAccessToken indicates the token response had no access_token.
	ErrMissingAccessToken = errors.New("token response has no access_token")

	// ErrInvalidResponse indicates the Graph listing did not answer 200.
	ErrInvalidResponse = errors.New("graph request did not return a valid response")

	// ErrForeignNextLink indicates a paging link outside the Graph API root.
	ErrForeignNextLink = errors.New("next link does not point at the graph API")
)

// AuthError is returned when the application token cannot be obtained.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("directory auth failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("directory auth failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// QueryError is returned when the directory listing fails.
type QueryError struct {
	StatusCode int
	Err        error
}

func (e *QueryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("directory query failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("directory query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
