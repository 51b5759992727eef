package util

import "errors"

var (
	// ErrValidation covers bad caller input: unsupported content type,
	// oversized upload, malformed request fields.
	ErrValidation = errors.New("validation failed")

	// ErrNoExtractableText means extraction produced empty content.
	ErrNoExtractableText = errors.New("no extractable text found in document")

	// ErrExternalService covers transport failures against the redaction,
	// embedding and answer services.
	ErrExternalService = errors.New("external service unavailable")

	ErrNotFound = errors.New("not found")
)
