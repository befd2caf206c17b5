package protocol

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload is returned when a structured payload cannot be parsed.
var ErrMalformedPayload = errors.New("malformed payload")

// Document is the root element of every structured payload.
type Document struct {
	XMLName     xml.Name           `xml:"xml"`
	Threads     []Thread           `xml:"thread,omitempty"`
	Vars        []Var              `xml:"var,omitempty"`
	Array       *Array             `xml:"array,omitempty"`
	Signature   *Signature         `xml:"call_signature,omitempty"`
	Events      []ConcurrencyEvent `xml:"threading_event,omitempty"`
	Completions []Completion       `xml:"comp,omitempty"`
}

// Thread describes a thread in create/suspend/show-console events.
type Thread struct {
	ID         string       `xml:"id,attr"`
	Name       string       `xml:"name,attr,omitempty"`
	StopReason int          `xml:"stop_reason,attr,omitempty"`
	Message    string       `xml:"message,attr,omitempty"`
	Frames     []StackFrame `xml:"frame,omitempty"`
}

// StackFrame is a single stack frame of a suspended thread.
type StackFrame struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
	File string `xml:"file,attr"`
	Line int    `xml:"line,attr"`
}

// Var is one value node as reported by the interpreter.
type Var struct {
	Name          string `xml:"name,attr"`
	Type          string `xml:"type,attr,omitempty"`
	Qualifier     string `xml:"qualifier,attr,omitempty"`
	Value         string `xml:"value,attr,omitempty"`
	IsContainer   bool   `xml:"isContainer,attr,omitempty"`
	IsRetVal      bool   `xml:"isRetVal,attr,omitempty"`
	IsErrorOnEval bool   `xml:"isErrorOnEval,attr,omitempty"`
	Shape         string `xml:"shape,attr,omitempty"`
}

// Array is a rectangular slice of a numeric or tabular container.
type Array struct {
	Slice  string      `xml:"slice,attr"`
	Rows   int         `xml:"rows,attr"`
	Cols   int         `xml:"cols,attr"`
	Format string      `xml:"format,attr,omitempty"`
	Type   string      `xml:"type,attr,omitempty"`
	Max    string      `xml:"max,attr,omitempty"`
	Min    string      `xml:"min,attr,omitempty"`
	Cells  []ArrayCell `xml:"cell,omitempty"`
}

// ArrayCell is one formatted element of an Array, relative to the chunk origin.
type ArrayCell struct {
	Row   int    `xml:"row,attr"`
	Col   int    `xml:"col,attr"`
	Value string `xml:"value,attr"`
}

// Signature is a recorded call signature.
type Signature struct {
	File   string         `xml:"file,attr"`
	Name   string         `xml:"name,attr"`
	Args   []SignatureArg `xml:"arg,omitempty"`
	Return *SignatureRet  `xml:"return,omitempty"`
}

// SignatureArg is one argument of a call signature.
type SignatureArg struct {
	Name string `xml:"name,attr"`
	Type string `xml:"type,attr"`
}

// SignatureRet is the observed return type of a call.
type SignatureRet struct {
	Type string `xml:"type,attr"`
}

// ConcurrencyEvent is one threading or asyncio instrumentation event.
type ConcurrencyEvent struct {
	Time     int64  `xml:"time,attr"`
	Name     string `xml:"name,attr"`
	ThreadID string `xml:"thread_id,attr"`
	Type     string `xml:"type,attr"`
	Event    string `xml:"event,attr"`
	File     string `xml:"file,attr,omitempty"`
	Line     int    `xml:"line,attr,omitempty"`
	LockID   string `xml:"lock_id,attr,omitempty"`
	ParentID string `xml:"parent,attr,omitempty"`
}

// Completion is one code completion proposal.
type Completion struct {
	Name string `xml:"p0,attr"`
	Doc  string `xml:"p1,attr,omitempty"`
	Args string `xml:"p2,attr,omitempty"`
	Type string `xml:"p3,attr,omitempty"`
}

// ParseDocument decodes a structured payload.
func ParseDocument(payload string) (*Document, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}
	var doc Document
	if err := xml.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &doc, nil
}

// MarshalDocument renders a structured payload. It is used by the interpreter
// side of the protocol and by tests.
func MarshalDocument(doc *Document) (string, error) {
	data, err := xml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(data), nil
}

// ParseThreads returns the threads of a thread event payload.
func ParseThreads(payload string) ([]Thread, error) {
	doc, err := ParseDocument(payload)
	if err != nil {
		return nil, err
	}
	if len(doc.Threads) == 0 {
		return nil, fmt.Errorf("%w: no thread element", ErrMalformedPayload)
	}
	return doc.Threads, nil
}

// ParseVariables returns the value nodes of a variable or evaluation reply.
func ParseVariables(payload string) ([]Var, error) {
	doc, err := ParseDocument(payload)
	if err != nil {
		return nil, err
	}
	return doc.Vars, nil
}

// ParseArray returns the array chunk of a get-array reply.
func ParseArray(payload string) (*Array, error) {
	doc, err := ParseDocument(payload)
	if err != nil {
		return nil, err
	}
	if doc.Array == nil {
		return nil, fmt.Errorf("%w: no array element", ErrMalformedPayload)
	}
	return doc.Array, nil
}

// ParseSignature returns the call signature of a signature trace payload.
func ParseSignature(payload string) (*Signature, error) {
	doc, err := ParseDocument(payload)
	if err != nil {
		return nil, err
	}
	if doc.Signature == nil {
		return nil, fmt.Errorf("%w: no call_signature element", ErrMalformedPayload)
	}
	return doc.Signature, nil
}

// ParseConcurrencyEvents returns the events of a concurrency instrumentation payload.
func ParseConcurrencyEvents(payload string) ([]ConcurrencyEvent, error) {
	doc, err := ParseDocument(payload)
	if err != nil {
		return nil, err
	}
	return doc.Events, nil
}

// ParseCompletions returns the proposals of a completions reply.
func ParseCompletions(payload string) ([]Completion, error) {
	doc, err := ParseDocument(payload)
	if err != nil {
		return nil, err
	}
	return doc.Completions, nil
}
