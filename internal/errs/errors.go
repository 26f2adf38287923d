package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/clip-scraper/pkg/log"
)

type ErrorType int

const (
	ErrCredentialsMissing ErrorType = iota
	ErrAuthRequestFailed
	ErrUpstream
	ErrSourceNotFound
	ErrNoContentFound
	ErrJobNotFound
	ErrValidation
	ErrUnknown
)

func (t ErrorType) String() string {
	switch t {
	case ErrCredentialsMissing:
		return "CredentialsMissing"
	case ErrAuthRequestFailed:
		return "AuthRequestFailed"
	case ErrUpstream:
		return "Upstream"
	case ErrSourceNotFound:
		return "SourceNotFound"
	case ErrNoContentFound:
		return "NoContentFound"
	case ErrJobNotFound:
		return "JobNotFound"
	case ErrValidation:
		return "Validation"
	default:
		return "Unknown"
	}
}

// ScrapeError is the error type returned across package boundaries.
// Status holds the upstream HTTP status for AuthRequestFailed and Upstream, 0 otherwise.
type ScrapeError struct {
	Type    ErrorType
	Message string
	Status  int
	Context map[string]any
	Cause   error
}

func New(errorType ErrorType, message string) *ScrapeError {
	return &ScrapeError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(errorType ErrorType, format string, args ...any) *ScrapeError {
	return New(errorType, fmt.Sprintf(format, args...))
}

func Wrap(err error, errorType ErrorType, message string) *ScrapeError {
	e := New(errorType, message)
	e.Cause = err
	return e
}

func (e *ScrapeError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type, e.Message))

	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status: %d", e.Status))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *ScrapeError) Unwrap() error {
	return e.Cause
}

func (e *ScrapeError) WithContext(key string, value any) *ScrapeError {
	e.Context[key] = value
	return e
}

func (e *ScrapeError) WithStatus(status int) *ScrapeError {
	e.Status = status
	return e
}

func IsType(err error, errorType ErrorType) bool {
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Type == errorType
	}
	return false
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var scrapeErr *ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Status
	}
	return 0
}

var authStatusMessages = map[int]string{
	400: "Invalid client_id or client_secret. Check TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET.",
	401: "Unauthorized. Your credentials may be incorrect.",
	403: "Forbidden. Your Twitch application may be suspended.",
	429: "Rate limited. Too many requests. Wait before retrying.",
	500: "Twitch server error. Try again later.",
}

// AuthMessage returns the human readable guidance for a failed token request.
func AuthMessage(status int) string {
	if msg, ok := authStatusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error: %d", status)
}

// AuthRequestFailed builds the error for a non-200 token endpoint response.
func AuthRequestFailed(status int, detail string) *ScrapeError {
	e := New(ErrAuthRequestFailed, "Failed to get token: "+AuthMessage(status)).WithStatus(status)
	if detail = strings.TrimSpace(detail); detail != "" {
		e.WithContext("detail", detail)
	}
	return e
}

// Advice returns a hint for the operator, logged next to job failures.
func Advice(err error) string {
	var scrapeErr *ScrapeError
	if !errors.As(err, &scrapeErr) {
		return "Review the error details and retry the job"
	}
	switch scrapeErr.Type {
	case ErrCredentialsMissing:
		return "Set TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET in the environment or .env file"
	case ErrAuthRequestFailed:
		return AuthMessage(scrapeErr.Status)
	case ErrUpstream:
		return "The Twitch API rejected the request; check network connectivity or retry later"
	case ErrSourceNotFound:
		return "Check the spelling of the game or channel name"
	case ErrNoContentFound:
		return "Widen the time window, disable language filtering, or choose other sources"
	case ErrJobNotFound:
		return "The job id is unknown or the job was deleted"
	case ErrValidation:
		return "Check the submitted parameters against the allowed ranges"
	default:
		return "Review the error details and retry the job"
	}
}

// Log writes err with its advice.
func Log(err error) {
	if err == nil {
		return
	}
	log.Error("Error detail: %v | advice: %s", err, Advice(err))
}

// SafeExecute runs fn and converts a panic into an Unknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = New(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
