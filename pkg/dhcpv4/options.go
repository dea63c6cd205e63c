package dhcpv4

import (
	"errors"
	"fmt"
)

// Mode selects how a known option that breaks its layout rule is handled.
type Mode int

const (
	// Lenient degrades a malformed known option to Opaque and keeps going.
	Lenient Mode = iota
	// Strict fails the whole message with ErrMalformedMessage.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// Options is the ordered option sequence of a message. Duplicate codes are
// kept in encounter order.
type Options []Option

// DecodeOptionStream parses a TLV option area. It stops at End or at the end
// of data; bytes after End are ignored. Pad bytes are kept as Pad entries so
// that the area re-encodes byte for byte.
// RFC 2132: options are TLV (type-length-value) encoded.
//
// A code that occurs more than once is one value split across instances
// (RFC 3396): Strict validates the concatenated payload, and fragments that
// do not decode on their own are kept as Opaque. Logical rebuilds the value.
func DecodeOptionStream(data []byte, mode Mode) (Options, error) {
	opts, err := scanOptions(data)
	if err != nil {
		return nil, err
	}
	if mode == Strict {
		if err := opts.validate(); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// scanOptions decodes one area leniently. Only a broken TLV structure is an
// error here.
func scanOptions(data []byte) (Options, error) {
	var opts Options
	for i := 0; i < len(data); {
		code := OptionCode(data[i])
		i++

		// Pad option (RFC 2132 §3.1)
		if code == OptionPad {
			opts = append(opts, Option{Code: OptionPad})
			continue
		}

		// End option (RFC 2132 §3.2)
		if code == OptionEnd {
			break
		}

		if i >= len(data) {
			return nil, malformedf("truncated option %d: no length byte", code)
		}
		length := int(data[i])
		i++
		if i+length > len(data) {
			return nil, malformedf("truncated option %d: need %d bytes, have %d", code, length, len(data)-i)
		}

		opt, err := DecodeOption(code, data[i:i+length])
		if err != nil {
			opt = Option{Code: code, Value: Opaque(clone(data[i : i+length]))}
		}
		opts = append(opts, opt)
		i += length
	}
	return opts, nil
}

// validate applies the Strict rules to a complete logical option sequence:
// a single instance must decode as its registered type, repeated instances
// must decode once concatenated.
func (opts Options) validate() error {
	count := make(map[OptionCode]int)
	for _, o := range opts {
		if o.Code != OptionPad {
			count[o.Code]++
		}
	}
	for _, o := range opts {
		n, seen := count[o.Code]
		if !seen {
			continue
		}
		delete(count, o.Code)

		var err error
		if n > 1 {
			_, _, err = opts.Logical(o.Code)
		} else if raw, degraded := o.Value.(Opaque); degraded {
			_, err = DecodeOption(o.Code, raw)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
	}
	return nil
}

// Encode serializes the options followed by a single End option.
func (opts Options) Encode() ([]byte, error) {
	var buf []byte
	for _, o := range opts {
		var err error
		if buf, err = o.appendTo(buf); err != nil {
			return nil, err
		}
	}
	return append(buf, byte(OptionEnd)), nil
}

// Get returns the value of the first option with the given code.
func (opts Options) Get(code OptionCode) (Value, bool) {
	for _, o := range opts {
		if o.Code == code && o.Value != nil {
			return o.Value, true
		}
	}
	return nil, false
}

// Has returns true if the option is present.
func (opts Options) Has(code OptionCode) bool {
	_, ok := opts.Get(code)
	return ok
}

// Set replaces every option with the code by a single entry at the position
// of the first one, or appends it.
func (opts *Options) Set(code OptionCode, v Value) {
	out := (*opts)[:0:0]
	placed := false
	for _, o := range *opts {
		if o.Code != code {
			out = append(out, o)
			continue
		}
		if !placed {
			out = append(out, Option{Code: code, Value: v})
			placed = true
		}
	}
	if !placed {
		out = append(out, Option{Code: code, Value: v})
	}
	*opts = out
}

// Add appends an option without touching existing entries of the same code.
func (opts *Options) Add(code OptionCode, v Value) {
	*opts = append(*opts, Option{Code: code, Value: v})
}

// Delete removes every option with the code.
func (opts *Options) Delete(code OptionCode) {
	out := (*opts)[:0:0]
	for _, o := range *opts {
		if o.Code != code {
			out = append(out, o)
		}
	}
	*opts = out
}

// Logical returns the single logical value of code. When the option occurs
// more than once the payloads are concatenated in order and decoded as one
// (RFC 3396).
func (opts Options) Logical(code OptionCode) (Value, bool, error) {
	var parts []Value
	for _, o := range opts {
		if o.Code == code && o.Value != nil {
			parts = append(parts, o.Value)
		}
	}
	switch len(parts) {
	case 0:
		return nil, false, nil
	case 1:
		return parts[0], true, nil
	}
	var joined []byte
	for _, v := range parts {
		b, err := v.marshal()
		if err != nil {
			return nil, true, err
		}
		joined = append(joined, b...)
	}
	o, err := DecodeOption(code, joined)
	if err != nil {
		return nil, true, err
	}
	return o.Value, true, nil
}

// Clone returns a copy of the sequence. Values are immutable once built and
// are shared.
func (opts Options) Clone() Options {
	if opts == nil {
		return nil
	}
	return append(Options(nil), opts...)
}

// withoutPad drops Pad entries.
func (opts Options) withoutPad() Options {
	out := make(Options, 0, len(opts))
	for _, o := range opts {
		if o.Code != OptionPad {
			out = append(out, o)
		}
	}
	return out
}

// IsMalformed reports whether err classifies as a malformed message or option.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedMessage) || errors.Is(err, ErrMalformedOption)
}
