// Package errors defines the structured error taxonomy for vellum.
//
// Every error that can surface from a render call is a *VellumError with a
// stable type and code, so callers can branch on the category (configuration,
// asset, serialization, payload) without string matching. All core errors
// propagate synchronously to the render call that triggered them; nothing is
// swallowed and logged-only, since a swallowed linking or context error
// produces silently broken pages.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType is the coarse error category callers branch on.
type ErrorType string

const (
	ErrorTypeConfig        ErrorType = "config"
	ErrorTypeAsset         ErrorType = "asset"
	ErrorTypeSerialization ErrorType = "serialization"
	ErrorTypePayload       ErrorType = "payload"
	ErrorTypeInternal      ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeCyclicInheritance = "ERR_CYCLIC_INHERITANCE"
	ErrCodeMissingParent     = "ERR_MISSING_PARENT"
	ErrCodeTemplateNotFound  = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodeAssetVanished     = "ERR_ASSET_VANISHED"
	ErrCodeSerialization     = "ERR_SERIALIZATION"
	ErrCodePayloadUnknown    = "ERR_PAYLOAD_UNKNOWN"
	ErrCodePayloadExpired    = "ERR_PAYLOAD_EXPIRED"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeInternal          = "ERR_INTERNAL"
)

// VellumError is a structured error type with context.
type VellumError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Template    string
	FilePath    string
	Recoverable bool
}

// Error renders "[CODE] template:name path message: cause", omitting empty
// parts.
func (e *VellumError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Template != "" {
		parts = append(parts, "template:"+e.Template)
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *VellumError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *VellumError) Is(target error) bool {
	var t *VellumError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext attaches a key/value detail for structured logging.
func (e *VellumError) WithContext(key string, value interface{}) *VellumError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithTemplate adds the qualified template name the error concerns.
func (e *VellumError) WithTemplate(qualified string) *VellumError {
	e.Template = qualified
	return e
}

// Error creation functions

// NewCyclicInheritanceError reports a cycle in the extends relation. The
// cycle slice holds qualified template names in walk order; the first element
// is repeated at the end so the report names the full loop.
func NewCyclicInheritanceError(cycle []string) *VellumError {
	return &VellumError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeCyclicInheritance,
		Message:     "cyclic template inheritance: " + strings.Join(cycle, " -> "),
		Context:     map[string]interface{}{"cycle": cycle},
		Recoverable: false,
	}
}

// NewMissingParentError reports an extends reference to a template the
// registry does not hold.
func NewMissingParentError(child, parent string) *VellumError {
	return &VellumError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeMissingParent,
		Message:     fmt.Sprintf("template %s extends %s, which is not registered", child, parent),
		Template:    child,
		Recoverable: false,
	}
}

// NewTemplateNotFoundError reports a lookup of an unregistered template.
func NewTemplateNotFoundError(qualified string) *VellumError {
	return &VellumError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeTemplateNotFound,
		Message:     "template not found: " + qualified,
		Template:    qualified,
		Recoverable: false,
	}
}

// NewAssetVanishedError reports an asset that disappeared between discovery
// and token computation. This races with concurrent file edits, so one
// re-resolution attempt is reasonable before surfacing it.
func NewAssetVanishedError(path string, cause error) *VellumError {
	return &VellumError{
		Type:        ErrorTypeAsset,
		Code:        ErrCodeAssetVanished,
		Message:     "asset vanished before hashing: " + path,
		FilePath:    path,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewSerializationError reports a context value that cannot be encoded for
// the client. The offending key is always named; dropping the value silently
// would make client code that depends on it fail invisibly.
func NewSerializationError(key string, cause error) *VellumError {
	return &VellumError{
		Type:        ErrorTypeSerialization,
		Code:        ErrCodeSerialization,
		Message:     fmt.Sprintf("context value %q is not serializable", key),
		Cause:       cause,
		Context:     map[string]interface{}{"key": key},
		Recoverable: false,
	}
}

// NewPayloadUnknownError reports retrieval of an identifier the registry has
// never seen. This is a programming error on the consumer side, distinct
// from post-response expiry.
func NewPayloadUnknownError(id string) *VellumError {
	return &VellumError{
		Type:        ErrorTypePayload,
		Code:        ErrCodePayloadUnknown,
		Message:     "unknown context payload: " + id,
		Recoverable: false,
	}
}

// NewPayloadExpiredError reports retrieval of an identifier whose payload was
// disposed after its response completed. This is normal post-response
// cleanup, distinct from a never-seen identifier.
func NewPayloadExpiredError(id string) *VellumError {
	return &VellumError{
		Type:        ErrorTypePayload,
		Code:        ErrCodePayloadExpired,
		Message:     "context payload expired: " + id,
		Recoverable: false,
	}
}

// NewConfigError wraps an invalid-configuration message in the taxonomy.
func NewConfigError(message string) *VellumError {
	return &VellumError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeConfigInvalid,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError marks a failure that indicates a bug rather than bad
// input.
func NewInternalError(message string, cause error) *VellumError {
	return &VellumError{
		Type:        ErrorTypeInternal,
		Code:        ErrCodeInternal,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Predicates

// IsRecoverable checks if an error is worth one retry (currently only the
// discovery/hash race).
func IsRecoverable(err error) bool {
	var ve *VellumError
	if errors.As(err, &ve) {
		return ve.Recoverable
	}
	return false
}

// IsCyclicInheritance checks for the cyclic-extends configuration error.
func IsCyclicInheritance(err error) bool {
	return hasCode(err, ErrCodeCyclicInheritance)
}

// IsAssetVanished checks for the discovery/hash race error.
func IsAssetVanished(err error) bool {
	return hasCode(err, ErrCodeAssetVanished)
}

// IsTemplateNotFound checks for a lookup of an unregistered template.
func IsTemplateNotFound(err error) bool {
	return hasCode(err, ErrCodeTemplateNotFound)
}

// IsPayloadUnknown checks for retrieval of a never-seen payload identifier.
func IsPayloadUnknown(err error) bool {
	return hasCode(err, ErrCodePayloadUnknown)
}

// IsPayloadExpired checks for retrieval of a disposed payload identifier.
func IsPayloadExpired(err error) bool {
	return hasCode(err, ErrCodePayloadExpired)
}

func hasCode(err error, code string) bool {
	var ve *VellumError
	if errors.As(err, &ve) {
		return ve.Code == code
	}
	return false
}

// Wrap wraps an error with additional context, creating a VellumError if the
// input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *VellumError {
	if err == nil {
		return nil
	}

	var ve *VellumError
	if errors.As(err, &ve) {
		return &VellumError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       ve,
			Context:     ve.Context,
			Template:    ve.Template,
			FilePath:    ve.FilePath,
			Recoverable: ve.Recoverable,
		}
	}

	return &VellumError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: false,
	}
}
