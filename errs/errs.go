package errs

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCookiesNotLoaded indicates that the cookie jar failed to load at startup.
	ErrCookiesNotLoaded = errors.New("cookies not loaded")
	// ErrVideoNotFound indicates that the player response carries no videoDetails.
	ErrVideoNotFound = errors.New("video not found")
	// ErrPlayerResponseNotFound indicates the page has no ytInitialPlayerResponse assignment.
	ErrPlayerResponseNotFound = errors.New("player response not found")
	// ErrUpstreamStatus indicates a non-2xx answer from the watch page.
	ErrUpstreamStatus = errors.New("unexpected upstream status")
	// ErrEmptyVideoID indicates an empty video identifier.
	ErrEmptyVideoID = errors.New("empty video id")
	// ErrBodyTooLarge indicates an upstream body over the client's size limit.
	ErrBodyTooLarge = errors.New("body too large")
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindUpstream
	KindExtraction
	KindBridge
	KindValidation
	KindNotFound
)

var kindNames = map[Kind]string{
	KindInternal:   "internal",
	KindConfig:     "config",
	KindUpstream:   "upstream",
	KindExtraction: "extraction",
	KindBridge:     "bridge",
	KindValidation: "validation",
	KindNotFound:   "not_found",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// HTTPStatus maps the kind to a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUpstream, KindExtraction:
		return http.StatusBadGateway
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a tagged error carrying the failing operation and its kind.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a tagged error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef builds a tagged error with a formatted message and no cause.
func Ef(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of the outermost tagged error in err's chain.
// Untagged errors are KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus returns the status code for err.
func HTTPStatus(err error) int {
	return KindOf(err).HTTPStatus()
}
