package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrIntegrity     = errors.New("integrity error")
	ErrStalled       = errors.New("encoder stalled")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
)

// Stable reason codes surfaced to the UI layer with every terminal failure.
const (
	ReasonValidationFailed  = "validation_failed"
	ReasonIntegrityMismatch = "integrity_mismatch"
	ReasonEncoderFailed     = "encoder_failed"
	ReasonIOFailure         = "io_failure"
	ReasonStalled           = "stalled"
	ReasonCancelled         = "cancelled"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ReasonCode maps a tagged error to the stable reason code reported to the
// UI layer and logged with every terminal failure.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return ReasonValidationFailed
	case errors.Is(err, ErrIntegrity):
		return ReasonIntegrityMismatch
	case errors.Is(err, ErrStalled):
		return ReasonStalled
	case errors.Is(err, ErrExternalTool):
		return ReasonEncoderFailed
	default:
		return ReasonIOFailure
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
