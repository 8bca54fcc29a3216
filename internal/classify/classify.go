// Package classify maps heterogeneous transcription failures (network
// errors, provider JSON error bodies, decode exceptions, HTTP status codes)
// into a closed set of user-facing categories with a retry verdict.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Category is one of the closed set of failure categories.
type Category string

const (
	InvalidCredential Category = "invalid_credential"
	QuotaExceeded     Category = "quota_exceeded"
	RateLimited       Category = "rate_limited"
	NetworkError      Category = "network_error"
	PayloadTooLarge   Category = "payload_too_large"
	UnsupportedFormat Category = "unsupported_format"
	DecodeFailure     Category = "decode_failure"
	EncodingMismatch  Category = "encoding_mismatch"
	NoSpeechDetected  Category = "no_speech_detected"
	Timeout           Category = "timeout"
	Cancelled         Category = "cancelled"
	MissingInput      Category = "missing_input"
	MissingCredential Category = "missing_credential"
	Unknown           Category = "unknown"
)

// remediation holds the category-specific message shown to the user. The
// UI renders these verbatim and does no further interpretation of raw
// provider errors.
var remediation = map[Category]string{
	InvalidCredential: "The API key was rejected. Check the configured key for this provider.",
	QuotaExceeded:     "The provider quota is exhausted. Check your plan and billing details.",
	RateLimited:       "Too many requests. Wait a moment before trying again.",
	NetworkError:      "Could not reach the transcription service. Check your connection.",
	PayloadTooLarge:   "The audio payload exceeds the provider's size limit.",
	UnsupportedFormat: "The provider does not accept this file format.",
	DecodeFailure:     "The audio file could not be decoded.",
	EncodingMismatch:  "The provider rejected the assumed audio encoding.",
	NoSpeechDetected:  "No speech was detected in the audio.",
	Timeout:           "The transcription service did not respond in time.",
	Cancelled:         "The transcription was cancelled.",
	MissingInput:      "No audio file was provided.",
	MissingCredential: "No API key is configured for this provider.",
	Unknown:           "Transcription failed for an unexpected reason.",
}

// Only these categories warrant an automatic retry: an encoding mismatch is
// resubmitted once with an auto-detect hint, and an oversized payload is
// replanned with smaller segments. Everything else is not expected to change
// on an identical resubmission.
var retryable = map[Category]bool{
	EncodingMismatch: true,
	PayloadTooLarge:  true,
}

// ClassifiedError is the terminal form of any pipeline failure.
type ClassifiedError struct {
	Category  Category
	Message   string
	Retryable bool
	Err       error
}

func (e *ClassifiedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Remediation returns the user-facing message for the category.
func (e *ClassifiedError) Remediation() string {
	return remediation[e.Category]
}

// New builds a ClassifiedError for a known category.
func New(cat Category, err error) *ClassifiedError {
	return &ClassifiedError{
		Category:  cat,
		Message:   remediation[cat],
		Retryable: retryable[cat],
		Err:       err,
	}
}

// HTTPError carries a provider HTTP status and body so classification can
// key off status codes where they exist.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// Classify converts any error into a ClassifiedError. Already-classified
// errors pass through unchanged.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.Canceled) {
		return New(Cancelled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(Timeout, err)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if cat, ok := classifyStatus(httpErr.StatusCode); ok {
			return New(cat, err)
		}
		if cat, ok := classifyMessage(httpErr.Body); ok {
			return New(cat, err)
		}
		return New(Unknown, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return New(Timeout, err)
		}
		return New(NetworkError, err)
	}

	if cat, ok := classifyMessage(err.Error()); ok {
		return New(cat, err)
	}
	return New(Unknown, err)
}

func classifyStatus(status int) (Category, bool) {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return InvalidCredential, true
	case http.StatusPaymentRequired:
		return QuotaExceeded, true
	case http.StatusTooManyRequests:
		return RateLimited, true
	case http.StatusRequestEntityTooLarge:
		return PayloadTooLarge, true
	case http.StatusUnsupportedMediaType:
		return UnsupportedFormat, true
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return Timeout, true
	}
	return Unknown, false
}

// classifyMessage pattern-matches provider error text. Ordering matters:
// specific phrases are checked before generic ones.
func classifyMessage(msg string) (Category, bool) {
	m := strings.ToLower(msg)
	switch {
	case contains(m, "payload size exceeds", "request entity too large", "file too large", "exceeds the maximum"):
		return PayloadTooLarge, true
	case contains(m, "invalid api key", "incorrect api key", "api key not valid", "unauthorized", "authentication"):
		return InvalidCredential, true
	case contains(m, "quota", "insufficient credits", "billing"):
		return QuotaExceeded, true
	case contains(m, "rate limit", "too many requests"):
		return RateLimited, true
	case contains(m, "sample rate mismatch", "encoding mismatch", "could not parse audio", "unexpected encoding"):
		return EncodingMismatch, true
	case contains(m, "unsupported format", "unsupported file type", "invalid file format", "could not process file"):
		return UnsupportedFormat, true
	case contains(m, "unable to decode", "decoding failed", "decode error", "corrupt"):
		return DecodeFailure, true
	case contains(m, "no speech", "no audio detected", "audio contains no"):
		return NoSpeechDetected, true
	case contains(m, "timed out", "timeout", "deadline exceeded"):
		return Timeout, true
	case contains(m, "connection refused", "no such host", "connection reset", "network is unreachable", "broken pipe"):
		return NetworkError, true
	}
	return Unknown, false
}

func contains(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
