// Package protocol implements the line-oriented wire format spoken between the
// debugger engine and the interpreter-side debugger.
//
// One frame is one line:
//
//	<sequence>\t<command-code>\t<field_1>|<field_2>|...|<field_n>
//
// Field values are escaped so that the delimiter, tabs and newlines survive a
// single-line transport. Structured replies (threads, variables, arrays) are
// XML documents carried in a single field.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FieldSeparator separates payload fields on the wire.
const FieldSeparator = "|"

// ErrMalformedFrame is returned when a line lacks the numeric sequence and code prefixes.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one decoded protocol message.
type Frame struct {
	Seq    int
	Code   Code
	Fields []string
}

// Field returns the i-th payload field, or "" when absent.
func (f Frame) Field(i int) string {
	if i < 0 || i >= len(f.Fields) {
		return ""
	}
	return f.Fields[i]
}

// Payload returns the first field, which carries the whole body for most replies.
func (f Frame) Payload() string {
	return f.Field(0)
}

func (f Frame) String() string {
	return fmt.Sprintf("#%d %s %q", f.Seq, f.Code, f.Fields)
}

var (
	fieldEscaper = strings.NewReplacer(
		"%", "%25",
		FieldSeparator, "%7C",
		"\n", "%0A",
		"\r", "%0D",
		"\t", "%09",
	)
	fieldUnescaper = strings.NewReplacer(
		"%25", "%",
		"%7C", FieldSeparator,
		"%0A", "\n",
		"%0D", "\r",
		"%09", "\t",
	)
)

// EscapeField substitutes the reserved characters of a single field value.
func EscapeField(s string) string {
	return fieldEscaper.Replace(s)
}

// UnescapeField reverses EscapeField.
func UnescapeField(s string) string {
	return fieldUnescaper.Replace(s)
}

// Encode renders a frame as a wire line without the trailing newline.
// A frame without fields has no payload section at all, which keeps an empty
// field list distinct from a single empty field.
func Encode(seq int, code Code, fields []string) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(seq))
	sb.WriteByte('\t')
	sb.WriteString(strconv.Itoa(int(code)))
	if len(fields) == 0 {
		return sb.String()
	}
	sb.WriteByte('\t')
	for i, f := range fields {
		if i > 0 {
			sb.WriteString(FieldSeparator)
		}
		sb.WriteString(EscapeField(f))
	}
	return sb.String()
}

// Encode renders the frame as a wire line.
func (f Frame) Encode() string {
	return Encode(f.Seq, f.Code, f.Fields)
}

// Decode parses a wire line. Trailing CR/LF are ignored.
func Decode(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")

	parts := strings.SplitN(line, "\t", 3)
	if len(parts) < 2 {
		return Frame{}, fmt.Errorf("%w: %q", ErrMalformedFrame, truncate(line, 64))
	}
	seq, err := strconv.Atoi(parts[0])
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad sequence %q", ErrMalformedFrame, truncate(parts[0], 32))
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return Frame{}, fmt.Errorf("%w: bad command code %q", ErrMalformedFrame, truncate(parts[1], 32))
	}

	frame := Frame{Seq: seq, Code: Code(code)}
	if len(parts) == 3 {
		raw := strings.Split(parts[2], FieldSeparator)
		frame.Fields = make([]string, len(raw))
		for i, r := range raw {
			frame.Fields[i] = UnescapeField(r)
		}
	}
	return frame, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
