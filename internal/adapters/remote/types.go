// Package remote provides an HTTP adapter for the remote session service.
package remote

import "time"

// DefaultBaseURL is the default session service endpoint.
const DefaultBaseURL = "http://localhost:5000/api/study"

// API endpoints
const (
	EndpointSessions = "/session"
	EndpointStart    = "/session/start"
)

// Default client settings.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
)

// Config holds the client configuration.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// DefaultConfig returns the default configuration with the given bearer token.
func DefaultConfig(token string) Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		Token:      token,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

// ErrorResponse is the error body returned by the session service.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// text returns the most descriptive message in the body.
func (e ErrorResponse) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
