// Package rlerr is the shared error taxonomy for the Siglus pipeline, the m6
// engine, and the audio codecs. It generalizes the teacher's diagnostics
// shape (category/stage/severity, byte-range spans, batched diagnostics)
// to the kinds named by the runtime's error handling design.
package rlerr

import "fmt"

// Kind is one of the named error kinds. Kinds, not Go types, are how callers
// distinguish failures — every *Error carries one.
type Kind string

const (
	KindCompileError      Kind = "CompileError"
	KindRuntimeError      Kind = "RuntimeError"
	KindValueError        Kind = "ValueError"
	KindTypeError         Kind = "TypeError"
	KindUndefinedOperator Kind = "UndefinedOperator"
	KindNameError         Kind = "NameError"
	KindStackUnderflow    Kind = "StackUnderflow"
	KindCodecError        Kind = "CodecError"
	KindInvalidArgument   Kind = "InvalidArgument"
)

// Stage names the pass that raised the diagnostic.
type Stage string

const (
	StageLex      Stage = "lex"
	StageAssemble Stage = "assemble"
	StageFold     Stage = "fold"
	StageTokenize Stage = "tokenize"
	StageParse    Stage = "parse"
	StageCompile  Stage = "compile"
	StageRun      Stage = "run"
	StageCodec    Stage = "codec"
)

// Severity distinguishes a hard failure from an accumulated warning (such as
// Siglus's non-0x7F property flag, which is reported but not fatal).
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Span is a byte range in the offending source, or a unit index/byte range
// in a codec stream.
type Span struct {
	Start int
	End   int
}

// Error is a single diagnostic: a kind, a stage, a message, and the span it
// points at. Every diagnostic in RLVM is one of these — there is no
// parallel hierarchy of Go error types per kind.
type Error struct {
	Kind     Kind
	Stage    Stage
	Severity Severity
	Message  string
	Span     Span
	Line     int // 1-based source line, 0 if not applicable
	Column   int // 1-based column within Line, 0 if not applicable
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d:%d)", e.Kind, e.Message, e.Line, e.Column)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an error-severity diagnostic.
func New(kind Kind, stage Stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Severity: SeverityError, Message: message}
}

// Newf builds an error-severity diagnostic with a formatted message.
func Newf(kind Kind, stage Stage, format string, args ...interface{}) *Error {
	return New(kind, stage, fmt.Sprintf(format, args...))
}

// WithSpan attaches a byte range to a diagnostic and returns it for chaining.
func (e *Error) WithSpan(start, end int) *Error {
	e.Span = Span{Start: start, End: end}
	return e
}

// WithPos attaches a line/column to a diagnostic and returns it for chaining.
func (e *Error) WithPos(line, column int) *Error {
	e.Line = line
	e.Column = column
	return e
}

// Batch is an accumulated, never-abort-early set of diagnostics produced by
// a single compilation pass (tokenizer, parser, or compiler).
type Batch struct {
	Errors []*Error
}

func (b *Batch) Error() string {
	if b == nil || len(b.Errors) == 0 {
		return ""
	}
	return b.Errors[0].Error()
}

// Add appends a diagnostic to the batch.
func (b *Batch) Add(err *Error) {
	b.Errors = append(b.Errors, err)
}

// HasErrors reports whether the batch contains any error-severity entry.
func (b *Batch) HasErrors() bool {
	for _, e := range b.Errors {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

// AsError returns the batch as an error if it has any error-severity
// diagnostics, or nil otherwise — the idiom every compile/parse entrypoint
// uses to decide whether to fail.
func (b *Batch) AsError() error {
	if b.HasErrors() {
		return b
	}
	return nil
}
