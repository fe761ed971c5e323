package bwire

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Code classifies a codec error. Every code except [CodeUnknown] and [CodeOutOfTurn] describes a condition on the
// wire after which the framing of the byte stream can no longer be trusted.
type Code int

const (
	CodeUnknown Code = iota
	CodeMalformedStartLine
	CodeMalformedHeader
	CodeHeaderBlockTooLarge
	CodeInvalidFraming
	CodeMalformedChunkSize
	CodeMalformedChunkTerminator
	CodeChunkTooLarge
	CodeUnexpectedEOF
	CodeBoundaryNotFound
	CodeMalformedPartHeader
	CodePartHeaderTooLarge
	CodeMissingBoundary
	CodePartNotConsumed
	CodeUnsupportedEncoding
	CodeConnClosing
	CodeOutOfTurn
)

var codeNames = map[Code]string{
	CodeUnknown:                  "Unknown",
	CodeMalformedStartLine:       "MalformedStartLine",
	CodeMalformedHeader:          "MalformedHeader",
	CodeHeaderBlockTooLarge:      "HeaderBlockTooLarge",
	CodeInvalidFraming:           "InvalidFraming",
	CodeMalformedChunkSize:       "MalformedChunkSize",
	CodeMalformedChunkTerminator: "MalformedChunkTerminator",
	CodeChunkTooLarge:            "ChunkTooLarge",
	CodeUnexpectedEOF:            "UnexpectedEof",
	CodeBoundaryNotFound:         "BoundaryNotFound",
	CodeMalformedPartHeader:      "MalformedPartHeader",
	CodePartHeaderTooLarge:       "PartHeaderTooLarge",
	CodeMissingBoundary:          "MissingBoundary",
	CodePartNotConsumed:          "PartNotConsumed",
	CodeUnsupportedEncoding:      "UnsupportedEncoding",
	CodeConnClosing:              "ConnClosing",
	CodeOutOfTurn:                "OutOfTurn",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}

	return fmt.Sprintf("Code(%d)", int(c))
}

// Status returns the HTTP status code a server should answer with when it gives up on a message because of an error
// with this code.
func (c Code) Status() int {
	switch c {
	case CodeHeaderBlockTooLarge, CodePartHeaderTooLarge:
		return http.StatusRequestHeaderFieldsTooLarge
	case CodeChunkTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnsupportedEncoding:
		return http.StatusUnsupportedMediaType
	case CodeUnknown, CodeOutOfTurn, CodeConnClosing:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// Error describes a codec error.
type Error struct {
	code Code
	err  error
}

// NewError inits a new error given the error code.
func NewError(c Code, underlying error) *Error {
	return &Error{c, underlying}
}

// errorf is a shorthand for a coded error with a formatted message.
func errorf(c Code, format string, args ...any) *Error {
	return NewError(c, errors.Newf(format, args...))
}

func (e *Error) Code() Code    { return e.code }
func (e *Error) Unwrap() error { return e.err }
func (e *Error) Error() string {
	if e.err == nil {
		return "bwire: " + e.code.String()
	}

	return fmt.Sprintf("bwire: %s: %s", e.code, e.err.Error())
}

// CodeOf returns the error's code if it is or wraps an [*Error] and [CodeUnknown] otherwise.
func CodeOf(err error) Code {
	if werr, ok := asError(err); ok {
		return werr.Code()
	}

	return CodeUnknown
}

// IsFatal reports whether err leaves the connection's framing untrusted. Incomplete input and misuse by the caller
// are not fatal.
func IsFatal(err error) bool {
	if err == nil || errors.Is(err, ErrIncomplete) {
		return false
	}

	switch CodeOf(err) {
	case CodeUnknown, CodeOutOfTurn, CodePartNotConsumed:
		return false
	default:
		return true
	}
}

// asError uses errors.As to unwrap any error and look for a *Error.
func asError(err error) (*Error, bool) {
	var werr *Error
	ok := errors.As(err, &werr)

	return werr, ok
}

// ErrIncomplete is returned by the resumable parsers when the window does not yet hold a complete element. It is not
// an error condition: the caller appends more bytes and retries.
var ErrIncomplete = errors.New("bwire: incomplete input")
