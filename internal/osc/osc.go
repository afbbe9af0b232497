// Package osc encodes the OSC 1.0 wire format used to drive the video engine.
//
// Only the encoding direction is implemented — WallCue never parses OSC. All
// functions are pure: a Command either encodes to exact bytes or its
// construction fails up front with ErrInvalidAddress. Nothing in this package
// touches the network.
//
// Wire layout (per the OSC 1.0 spec):
//
//	address   — UTF-8 path + NUL, zero-padded to a multiple of 4
//	type tags — "," + one tag per argument ('i','f','s','T','F'), same padding
//	arguments — int32/float32 big-endian (4 bytes), strings padded like
//	            addresses, booleans contribute no payload bytes at all
//	bundle    — "#bundle"+NUL, 8-byte big-endian time tag, then each element
//	            as a 4-byte big-endian length prefix + its encoded bytes
package osc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidAddress is returned when an OSC address pattern is empty, does not
// start with '/', or contains a space. The check runs before any bytes are
// produced so a malformed command can never reach the network.
var ErrInvalidAddress = errors.New("osc: invalid address")

// TimeTagImmediate is the OSC time tag meaning "execute immediately".
const TimeTagImmediate uint64 = 1

// ─── Address ─────────────────────────────────────────────────────────────────

// Address is a validated OSC address pattern.
type Address string

// NewAddress validates s as an OSC address pattern.
func NewAddress(s string) (Address, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if !strings.HasPrefix(s, "/") {
		return "", fmt.Errorf("%w: %q must start with '/'", ErrInvalidAddress, s)
	}
	if strings.ContainsRune(s, ' ') {
		return "", fmt.Errorf("%w: %q contains a space", ErrInvalidAddress, s)
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }

// ─── Arguments ───────────────────────────────────────────────────────────────

// Arg is a single typed OSC argument.
// The zero value is not valid; construct args with Int, Float, String, Bool.
type Arg struct {
	tag byte
	i   int32
	f   float32
	s   string
}

// Int builds an int32 argument (tag 'i').
func Int(v int32) Arg { return Arg{tag: 'i', i: v} }

// Float builds a float32 argument (tag 'f').
func Float(v float32) Arg { return Arg{tag: 'f', f: v} }

// String builds a string argument (tag 's').
func String(v string) Arg { return Arg{tag: 's', s: v} }

// Bool builds a boolean argument. Booleans are carried entirely by their type
// tag ('T' or 'F') and contribute zero payload bytes.
func Bool(v bool) Arg {
	if v {
		return Arg{tag: 'T'}
	}
	return Arg{tag: 'F'}
}

// Tag returns the ASCII type-tag character for the argument.
func (a Arg) Tag() byte { return a.tag }

// appendPayload appends the argument's payload bytes (possibly none) to buf.
func (a Arg) appendPayload(buf []byte) []byte {
	switch a.tag {
	case 'i':
		return binary.BigEndian.AppendUint32(buf, uint32(a.i))
	case 'f':
		// Floats travel as their IEEE-754 bit pattern, never a textual form.
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(a.f))
	case 's':
		return appendPaddedString(buf, a.s)
	default: // 'T', 'F' — tag-only
		return buf
	}
}

// ─── Command ─────────────────────────────────────────────────────────────────

// Command is one addressed OSC message, ready to encode.
type Command struct {
	Addr Address
	Args []Arg
}

// NewCommand validates addr and builds a Command with the given arguments.
func NewCommand(addr string, args ...Arg) (Command, error) {
	a, err := NewAddress(addr)
	if err != nil {
		return Command{}, err
	}
	return Command{Addr: a, Args: args}, nil
}

// Encode renders the command to its exact wire bytes.
// The result length is always a positive multiple of 4.
func (c Command) Encode() []byte {
	// address + NUL, padded
	buf := appendPaddedString(nil, string(c.Addr))

	// type tag string: "," + one tag char per argument, padded.
	// A zero-argument command still carries a "," section.
	tags := make([]byte, 0, 1+len(c.Args))
	tags = append(tags, ',')
	for _, a := range c.Args {
		tags = append(tags, a.Tag())
	}
	buf = appendPaddedString(buf, string(tags))

	for _, a := range c.Args {
		buf = a.appendPayload(buf)
	}
	return buf
}

// ─── Bundle ──────────────────────────────────────────────────────────────────

// Bundle groups pre-encoded commands behind a single time tag.
type Bundle struct {
	Time     time.Time // zero value encodes as TimeTagImmediate
	Commands []Command
}

// Encode renders the bundle: "#bundle"+NUL header, 8-byte big-endian time
// tag, then each command prefixed with its 4-byte big-endian length.
func (b Bundle) Encode() []byte {
	buf := appendPaddedString(nil, "#bundle")
	buf = binary.BigEndian.AppendUint64(buf, timeTag(b.Time))
	for _, c := range b.Commands {
		enc := c.Encode()
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(enc)))
		buf = append(buf, enc...)
	}
	return buf
}

// timeTag converts t to a 64-bit NTP-style OSC time tag.
func timeTag(t time.Time) uint64 {
	if t.IsZero() {
		return TimeTagImmediate
	}
	// Seconds since 1900-01-01 in the high 32 bits, fractional second below.
	const ntpEpochOffset = 2208988800
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / 1_000_000_000
	return secs<<32 | frac
}

// ─── padding ─────────────────────────────────────────────────────────────────

// appendPaddedString appends s, a NUL terminator, and zero padding until the
// appended section is a multiple of 4 bytes long.
func appendPaddedString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	buf = append(buf, 0)
	for n := len(s) + 1; n%4 != 0; n++ {
		buf = append(buf, 0)
	}
	return buf
}
