package entraid

import "fmt"

// TokenExchangeError is returned when an authorization code cannot be exchanged.
// Description is set when Entra ID answered with an OAuth error payload; Err is
// set for transport and decoding failures.
type TokenExchangeError struct {
	Description string
	Err         error
}

func (e *TokenExchangeError) Error() string {
	if e.Err == nil {
		return "OAuth trouble at creating token: " + e.Description
	}
	return fmt.Sprintf("Generic trouble at creating token: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// IsOAuthError reports whether the provider rejected the exchange.
func (e *TokenExchangeError) IsOAuthError() bool {
	return e.Err == nil
}

// CallbackError carries the error returned by Entra ID on the redirect callback.
type CallbackError struct {
	Code        string
	Description string
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("An error occurred at Entra ID: [%s] [%s]", e.Code, e.Description)
}

// ProfileFetchError wraps any failure while reading the signed-in user's profile.
type ProfileFetchError struct {
	StatusCode int
	Err        error
}

func (e *ProfileFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to fetch profile: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to fetch profile: %v", e.Err)
}

func (e *ProfileFetchError) Unwrap() error {
	return e.Err
}
