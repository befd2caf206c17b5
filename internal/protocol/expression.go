package protocol

import "strings"

// Placeholders for characters inside free-form expressions (breakpoint
// conditions, log expressions). They are applied before frame escaping and are
// understood by the interpreter side independently of it.
const (
	NewLinePlaceholder = "@_@NEW_LINE_CHAR@_@"
	TabPlaceholder     = "@_@TAB_CHAR@_@"
)

var (
	expressionEncoder = strings.NewReplacer(
		"\r\n", NewLinePlaceholder,
		"\n", NewLinePlaceholder,
		"\t", TabPlaceholder,
	)
	expressionDecoder = strings.NewReplacer(
		NewLinePlaceholder, "\n",
		TabPlaceholder, "\t",
	)
)

// EncodeExpression replaces newlines and tabs with their placeholders.
func EncodeExpression(s string) string {
	return expressionEncoder.Replace(s)
}

// DecodeExpression reverses EncodeExpression.
func DecodeExpression(s string) string {
	return expressionDecoder.Replace(s)
}
