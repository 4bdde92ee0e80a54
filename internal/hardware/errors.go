package hardware

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a hardware signing failure
type Kind string

const (
	KindTransportNotInitialized Kind = "transport_not_initialized"
	KindInvalidNetwork          Kind = "invalid_network"
	KindPopupFailedToOpen       Kind = "popup_failed_to_open"
	KindDeviceRejected          Kind = "device_rejected"
	KindUnsupportedOperation    Kind = "unsupported_operation"
	KindMissingField            Kind = "missing_field"
)

// Error is the taxonomy error returned across the driver boundary. Two
// errors match under errors.Is when their kinds match, regardless of the
// device-supplied message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches on Kind only
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrTransportNotInitialized = &Error{Kind: KindTransportNotInitialized, Message: "device session not initialized"}
	ErrInvalidNetwork          = &Error{Kind: KindInvalidNetwork, Message: "unsupported chain or vendor"}
	ErrPopupFailedToOpen       = &Error{Kind: KindPopupFailedToOpen, Message: "vendor popup failed to open"}
	ErrUnsupportedOperation    = &Error{Kind: KindUnsupportedOperation, Message: "operation not supported by this device"}
)

// DeviceRejected builds a rejection error carrying the device-supplied
// message verbatim
func DeviceRejected(message string) *Error {
	return &Error{Kind: KindDeviceRejected, Message: message}
}

// MissingField reports a request payload missing a required field, detected
// before any device interaction
func MissingField(field string) *Error {
	return &Error{Kind: KindMissingField, Message: fmt.Sprintf("missing required field: %s", field)}
}

// KindOf extracts the taxonomy kind from err, unwrapping as needed.
// Returns false when err carries no taxonomy classification.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind checks whether err carries the given taxonomy kind
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// FromTransportError normalizes an arbitrary transport failure into the
// taxonomy. Errors already classified pass through unchanged; everything
// else becomes a device rejection with the original message preserved.
func FromTransportError(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return DeviceRejected(err.Error())
}
