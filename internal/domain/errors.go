package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// FeedError is raised when a venue's catalog or quote stream fails.
// A FeedError terminates the venue's stream for the current cycle.
type FeedError struct {
	Venue     string
	Op        string // "catalog", "subscribe", "read", "decode", "timeout"
	Err       error
	Retriable bool
}

func (e *FeedError) Error() string {
	return "feed " + e.Venue + " " + e.Op + ": " + e.Err.Error()
}

func (e *FeedError) IsRetriable() bool {
	return e.Retriable
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// NewFeedError wraps err as a retriable failure of venue's feed.
func NewFeedError(venue, op string, err error) *FeedError {
	return &FeedError{Venue: venue, Op: op, Err: err, Retriable: true}
}

// AsFeedError returns err as a *FeedError, wrapping it for venue when it is not one already.
func AsFeedError(venue, op string, err error) *FeedError {
	var fe *FeedError
	if errors.As(err, &fe) {
		return fe
	}
	retriable := true
	var re RetriableError
	if errors.As(err, &re) {
		retriable = re.IsRetriable()
	}
	return &FeedError{Venue: venue, Op: op, Err: err, Retriable: retriable}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrConnectionFailed is returned when websocket connection fails. It's usually retriable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrStreamClosed is returned by a quote stream after Close or after its first failure.
	ErrStreamClosed = errors.New("quote stream closed")

	// ErrNoActiveFeeds is returned when no venue can contribute quotes to a cycle.
	ErrNoActiveFeeds = errors.New("no active feeds")

	// ErrUnknownVenue is returned when no feed provider is registered under a venue name.
	ErrUnknownVenue = errors.New("unknown venue")

	// ErrChannelFull is returned when a signal batch is rejected by a full channel.
	ErrChannelFull = errors.New("signal channel full")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
