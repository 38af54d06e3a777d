package capture

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeValidation          = "VALIDATION_ERROR"
	TextCodeInvalidCursor       = "INVALID_CURSOR"
	TextCodeNotFound            = "NOT_FOUND"
	TextCodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	TextCodeIdentifierCollision = "IDENTIFIER_COLLISION"
)

func captureError(message string, category goerrors.Category, code int, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func validationError(message string, metadata map[string]any) error {
	return captureError(message, goerrors.CategoryValidation, http.StatusBadRequest, TextCodeValidation, metadata)
}

func invalidCursorError(cursor string) error {
	return captureError("invalid cursor", goerrors.CategoryValidation, http.StatusBadRequest, TextCodeInvalidCursor,
		map[string]any{"cursor": cursor})
}

func notFoundError(id string) error {
	return captureError("delivery not found", goerrors.CategoryNotFound, http.StatusNotFound, TextCodeNotFound,
		map[string]any{"id": id})
}

func collisionError(id string) error {
	return captureError("identifier collision", goerrors.CategoryConflict, http.StatusConflict, TextCodeIdentifierCollision,
		map[string]any{"id": id})
}

func storageUnavailable(source error, message string) error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(TextCodeStorageUnavailable)
}

func asError(err error) (*goerrors.Error, bool) {
	var rich *goerrors.Error
	if err == nil || !goerrors.As(err, &rich) {
		return nil, false
	}
	return rich, true
}

// IsValidation reports whether err is caller input rejected before any storage I/O.
func IsValidation(err error) bool {
	rich, ok := asError(err)
	return ok && rich.Category == goerrors.CategoryValidation
}

// IsNotFound reports whether err is a well-formed lookup with no matching delivery.
func IsNotFound(err error) bool {
	rich, ok := asError(err)
	return ok && rich.Category == goerrors.CategoryNotFound
}

// IsStorageUnavailable reports whether the store failed to complete an operation.
func IsStorageUnavailable(err error) bool {
	rich, ok := asError(err)
	return ok && rich.TextCode == TextCodeStorageUnavailable
}

// StatusCode returns the HTTP status mapped to err, 500 when err carries none.
func StatusCode(err error) int {
	if rich, ok := asError(err); ok && rich.Code != 0 {
		return rich.Code
	}
	return http.StatusInternalServerError
}
