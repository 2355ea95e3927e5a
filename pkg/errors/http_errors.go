package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	appErr := NewBadRequestError(code, message)
	appErr.Details = details
	return appErr
}

// ValidationError creates the structured 400 used for schema violations
func ValidationError(message string, fields []FieldError) *AppError {
	appErr := NewBadRequestError("VALIDATION_FAILED", message).WithCause(ErrValidationFailure)
	if len(fields) > 0 {
		appErr.Details = fields
	}
	return appErr
}

// UploadRejected creates the 400 returned for unusable uploads
func UploadRejected(message string) *AppError {
	return NewBadRequestError("UPLOAD_REJECTED", message).WithCause(ErrUploadRejected)
}

// FromError converts a standard error to an AppError
// If the error is already an AppError, it is returned as-is.
// Wrapped failure kinds map onto their HTTP status; anything else is an internal error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	switch {
	case stderrors.Is(err, ErrValidationFailure):
		return NewBadRequestError("VALIDATION_FAILED", err.Error()).WithCause(err)
	case stderrors.Is(err, ErrUploadRejected):
		return NewBadRequestError("UPLOAD_REJECTED", err.Error()).WithCause(err)
	case stderrors.Is(err, ErrTransportTimeout):
		return NewGatewayTimeoutError("TRANSPORT_TIMEOUT", "The model did not answer in time").WithCause(err)
	case stderrors.Is(err, ErrGenerationFailure):
		return NewInternalServerError("GENERATION_FAILED", "Error generating answer").WithCause(err)
	case stderrors.Is(err, ErrOCRFailure):
		return NewInternalServerError("OCR_FAILED", "Error processing image").WithCause(err)
	}

	return NewInternalServerError(
		"INTERNAL_ERROR",
		fmt.Sprintf("An unexpected error occurred: %s", err.Error()),
	).WithCause(err)
}

// GetStatusCode extracts the HTTP status code from an error, returns 500 if unknown
func GetStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).StatusCode
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Code
}
