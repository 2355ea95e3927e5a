package errors

// Kind classifies a failure in the answer pipeline or at the API boundary.
// Wrap a Kind with fmt.Errorf("%w: ...") and test for it with the standard errors.Is.
type Kind string

// Error implements the error interface
func (k Kind) Error() string {
	return string(k)
}

// Failure kinds
const (
	// ErrOCRFailure means the recognition engine threw or returned unusable output
	ErrOCRFailure Kind = "ocr failure"
	// ErrGenerationFailure covers transport, auth and upstream-model errors on answer generation
	ErrGenerationFailure Kind = "generation failure"
	// ErrTransportTimeout means the answer request ran out of time before the model replied
	ErrTransportTimeout Kind = "transport timeout"
	// ErrValidationFailure means a request body did not match the message schema
	ErrValidationFailure Kind = "validation failure"
	// ErrUploadRejected means an uploaded file was missing, too large or of the wrong type
	ErrUploadRejected Kind = "upload rejected"
)

// FieldError describes one invalid field in a request body
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
