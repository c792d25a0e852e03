// Package apperrors provides common static errors used throughout the application.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPError represents an HTTP error with a status code.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, body string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Body: body}
}

// TypeMismatchError is returned when a persisted node and an incoming node share an identity
// but not a type. It aborts the whole merge.
type TypeMismatchError struct {
	Path      []string
	Persisted string
	Incoming  string
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("node type mismatch at %q, persisted: %s, incoming: %s",
		strings.Join(e.Path, "/"), e.Persisted, e.Incoming)
}

// Is reports ErrStructuralMismatch as matching.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrStructuralMismatch
}

// InvalidLinkError is returned when a file link does not have the shape of a download link.
type InvalidLinkError struct {
	Link string
}

// Error implements the error interface.
func (e *InvalidLinkError) Error() string {
	return fmt.Sprintf("url: %s does not look like a download link", e.Link)
}

// Is reports ErrInvalidLink as matching.
func (e *InvalidLinkError) Is(target error) bool {
	return target == ErrInvalidLink
}

// Common static errors used throughout the application.
var (
	// ErrStructuralMismatch matches every TypeMismatchError.
	ErrStructuralMismatch = errors.New("structural mismatch")

	// ErrInvalidLink matches every InvalidLinkError.
	ErrInvalidLink = errors.New("invalid download link")

	// ErrUnknownNodeType is returned when a record carries a type tag outside folder, file and recorded_lecture.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrCorruptedState is returned when the persisted tree cannot be trusted.
	ErrCorruptedState = errors.New("corrupted persisted state")

	// ErrUsernameRequired is returned when no username was provided.
	ErrUsernameRequired = errors.New("username required (--username or NTL_USERNAME env var)")

	// ErrPasswordRequired is returned when no password was provided and none can be prompted for.
	ErrPasswordRequired = errors.New("password required (--password or NTL_PASSWORD env var)")

	// ErrDownloadDirRequired is returned when a command needs a target directory.
	ErrDownloadDirRequired = errors.New("download directory required (--download-to or NTL_DIR env var)")

	// ErrNoSessionCookie is returned when the portal did not hand out a BbRouter cookie.
	ErrNoSessionCookie = errors.New("expected BbRouter in returned cookies")

	// ErrNotAuthenticated is returned when the BbRouter token has no user field after login.
	ErrNotAuthenticated = errors.New("BbRouter does not have user field, it is not authenticated")

	// ErrLoginFormNotFound is returned when the identity provider page has no login form.
	ErrLoginFormNotFound = errors.New("login form not found")

	// ErrSAMLResponseNotFound is returned when the identity provider did not return a SAML response.
	ErrSAMLResponseNotFound = errors.New("SAML response not found")

	// ErrMissingSAMLParam is returned when a SAML redirect lacks a required query parameter.
	ErrMissingSAMLParam = errors.New("missing SAML parameter")

	// ErrLectureLinkNotFound is returned when a recorded lecture page has no stream information.
	ErrLectureLinkNotFound = errors.New("unable to get mp4 download link")

	// ErrMaxRetriesExceeded is returned when the maximum number of retries is exceeded.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrNoHistory is returned when no history repository exists yet.
	ErrNoHistory = errors.New("no history repository")

	// ErrNoFilename is returned when a download link carries no file name.
	ErrNoFilename = errors.New("unable to get filename from download link")
)
