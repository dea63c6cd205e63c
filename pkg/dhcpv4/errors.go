package dhcpv4

import (
	"errors"
	"fmt"
)

// Error classes. Use errors.Is to classify a failure.
var (
	// ErrMalformedMessage covers truncated headers, a bad magic cookie,
	// truncated option TLVs and invalid overload values. The packet should
	// be discarded.
	ErrMalformedMessage = errors.New("malformed DHCP message")

	// ErrMalformedOption is an arity or range violation for a known option
	// code. In Strict mode it also fails the enclosing message.
	ErrMalformedOption = errors.New("malformed DHCP option")

	// ErrProtocolViolation is a well-formed message that breaks RFC 2131
	// rules for the exchange it belongs to.
	ErrProtocolViolation = errors.New("DHCP protocol violation")

	// ErrEncoding means a value does not fit its wire field. It indicates a
	// bug in the caller, not bad input.
	ErrEncoding = errors.New("DHCP encoding error")
)

// OptionError describes why a single option failed to decode.
type OptionError struct {
	Code   OptionCode
	Reason string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("option %d (%s): %s", byte(e.Code), e.Code, e.Reason)
}

// Unwrap lets errors.Is match ErrMalformedOption.
func (e *OptionError) Unwrap() error { return ErrMalformedOption }

func optionErrorf(code OptionCode, format string, args ...any) error {
	return &OptionError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, fmt.Sprintf(format, args...))
}

func encodingf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEncoding, fmt.Sprintf(format, args...))
}
