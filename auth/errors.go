package auth

import "fmt"

// TokenRetrievalError is returned when the token endpoint answers with an
// unexpected status.
type TokenRetrievalError struct {
	StatusCode int
	Detail     string
}

func (e *TokenRetrievalError) Error() string {
	msg := "failed to retrieve authentication token"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(". Status code: %d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += fmt.Sprintf(". Details: %s", e.Detail)
	}
	return msg
}

// InvalidCredentialsError is returned when the token endpoint rejects the
// supplied credentials.
type InvalidCredentialsError struct {
	EnvType string
	Detail  string
}

func (e *InvalidCredentialsError) Error() string {
	msg := "authentication failed: invalid credentials provided"
	if e.EnvType != "" {
		msg += fmt.Sprintf(" (environment: %s)", e.EnvType)
	}
	if e.Detail != "" {
		msg += fmt.Sprintf(". Details: %s", e.Detail)
	}
	return msg
}

// AuthenticationError is returned for authentication failures that are
// neither a bad status nor bad credentials, such as an empty token in an
// otherwise well-formed reply.
type AuthenticationError struct {
	Detail string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	msg := "authentication failed"
	if e.Detail != "" {
		msg += fmt.Sprintf(". Details: %s", e.Detail)
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}
