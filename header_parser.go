package bwire

import (
	"bytes"
)

// span is a borrowed view into the window being parsed.
type span struct{ off, end int }

type fieldView struct{ name, value span }

// HeaderParser tokenizes and validates start-lines and header blocks. It keeps no state between calls apart from a
// reusable scratch slice: a call that returns [ErrIncomplete] is simply repeated once the window has grown.
type HeaderParser struct {
	maxBytes  int
	malformed Code
	tooLarge  Code
	views     []fieldView
}

// NewHeaderParser returns a parser for message heads and trailer blocks limited to maxBytes.
func NewHeaderParser(maxBytes int) *HeaderParser {
	return &HeaderParser{maxBytes: maxBytes, malformed: CodeMalformedHeader, tooLarge: CodeHeaderBlockTooLarge}
}

// NewPartHeaderParser returns a parser for multipart part headers. Its errors carry the part specific codes.
func NewPartHeaderParser(maxBytes int) *HeaderParser {
	return &HeaderParser{maxBytes: maxBytes, malformed: CodeMalformedPartHeader, tooLarge: CodePartHeaderTooLarge}
}

var crlf = []byte("\r\n")

// block locates the end of a header block that starts with a start-line. It returns the number of bytes up to and
// including the terminating empty line.
func (p *HeaderParser) block(window []byte) (int, error) {
	limited := window
	if len(limited) > p.maxBytes {
		limited = limited[:p.maxBytes]
	}

	if idx := bytes.Index(limited, []byte("\r\n\r\n")); idx >= 0 {
		return idx + 4, nil
	}

	if len(window) >= p.maxBytes {
		return 0, errorf(p.tooLarge, "header block exceeds %d bytes", p.maxBytes)
	}

	return 0, ErrIncomplete
}

// ParseRequest parses a request line and header block from the start of window. It returns the number of bytes the
// head occupies.
func (p *HeaderParser) ParseRequest(window []byte) (*Head, int, error) {
	n, err := p.block(window)
	if err != nil {
		return nil, 0, err
	}

	lineEnd := bytes.Index(window, crlf)
	head, err := parseRequestLine(window[:lineEnd])
	if err != nil {
		return nil, 0, err
	}

	if head.Header, err = p.fields(window, lineEnd+2, n-2); err != nil {
		return nil, 0, err
	}

	return head, n, nil
}

// ParseResponse parses a status line and header block from the start of window.
func (p *HeaderParser) ParseResponse(window []byte) (*Head, int, error) {
	n, err := p.block(window)
	if err != nil {
		return nil, 0, err
	}

	lineEnd := bytes.Index(window, crlf)
	head, err := parseStatusLine(window[:lineEnd])
	if err != nil {
		return nil, 0, err
	}

	if head.Header, err = p.fields(window, lineEnd+2, n-2); err != nil {
		return nil, 0, err
	}

	return head, n, nil
}

// ParseFields parses a header block without start-line, as found in chunked trailers and multipart parts. An empty
// block consists of the terminating line alone.
func (p *HeaderParser) ParseFields(window []byte) (Header, int, error) {
	if len(window) < 2 {
		return nil, 0, ErrIncomplete
	}

	if window[0] == '\r' && window[1] == '\n' {
		return Header{}, 2, nil
	}

	limited := window
	if len(limited) > p.maxBytes {
		limited = limited[:p.maxBytes]
	}

	idx := bytes.Index(limited, []byte("\r\n\r\n"))
	if idx < 0 {
		if len(window) >= p.maxBytes {
			return nil, 0, errorf(p.tooLarge, "header block exceeds %d bytes", p.maxBytes)
		}

		return nil, 0, ErrIncomplete
	}

	hdr, err := p.fields(window, 0, idx+2)
	if err != nil {
		return nil, 0, err
	}

	return hdr, idx + 4, nil
}

// fields parses the CRLF terminated field lines in window[from:to] and converts the views into an owned Header.
func (p *HeaderParser) fields(window []byte, from, to int) (Header, error) {
	p.views = p.views[:0]

	for pos := from; pos < to; {
		end := pos + bytes.Index(window[pos:to], crlf)
		if end < pos {
			return nil, errorf(p.malformed, "field line not terminated by CRLF")
		}

		fv, err := p.fieldLine(window, pos, end)
		if err != nil {
			return nil, err
		}

		p.views = append(p.views, fv)
		pos = end + 2
	}

	hdr := make(Header, len(p.views))
	for i, fv := range p.views {
		hdr[i] = Field{
			Name:  string(window[fv.name.off:fv.name.end]),
			Value: string(window[fv.value.off:fv.value.end]),
		}
	}

	return hdr, nil
}

func (p *HeaderParser) fieldLine(window []byte, start, end int) (fieldView, error) {
	line := window[start:end]
	if len(line) == 0 {
		return fieldView{}, errorf(p.malformed, "empty field line")
	}

	if line[0] == ' ' || line[0] == '\t' {
		return fieldView{}, errorf(p.malformed, "obsolete line folding is not supported")
	}

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return fieldView{}, errorf(p.malformed, "field line without name or colon: %q", line)
	}

	for _, c := range line[:colon] {
		if !isTokenChar(c) {
			return fieldView{}, errorf(p.malformed, "invalid character %q in field name", c)
		}
	}

	vs, ve := start+colon+1, end
	for vs < ve && isOWS(window[vs]) {
		vs++
	}
	for ve > vs && isOWS(window[ve-1]) {
		ve--
	}

	for _, c := range window[vs:ve] {
		if !isFieldValueChar(c) {
			return fieldView{}, errorf(p.malformed, "invalid character %q in value of field %q", c, line[:colon])
		}
	}

	return fieldView{name: span{start, start + colon}, value: span{vs, ve}}, nil
}

func parseRequestLine(line []byte) (*Head, error) {
	parts := bytes.Split(line, []byte(" "))
	if len(parts) != 3 {
		return nil, errorf(CodeMalformedStartLine, "request line must have 3 tokens, got %d", len(parts))
	}

	method, target, proto := parts[0], parts[1], parts[2]
	if len(method) == 0 {
		return nil, errorf(CodeMalformedStartLine, "empty method")
	}
	for _, c := range method {
		if !isTokenChar(c) {
			return nil, errorf(CodeMalformedStartLine, "invalid character %q in method", c)
		}
	}

	if len(target) == 0 {
		return nil, errorf(CodeMalformedStartLine, "empty request target")
	}
	for _, c := range target {
		if c <= ' ' || c == 0x7f {
			return nil, errorf(CodeMalformedStartLine, "invalid character %q in request target", c)
		}
	}

	vers, ok := parseVersion(proto)
	if !ok {
		return nil, errorf(CodeMalformedStartLine, "invalid protocol version %q", proto)
	}

	return &Head{Method: string(method), Target: string(target), Version: vers}, nil
}

func parseStatusLine(line []byte) (*Head, error) {
	sp := bytes.IndexByte(line, ' ')
	if sp < 0 {
		return nil, errorf(CodeMalformedStartLine, "status line without status code")
	}

	vers, ok := parseVersion(line[:sp])
	if !ok {
		return nil, errorf(CodeMalformedStartLine, "invalid protocol version %q", line[:sp])
	}

	rest := line[sp+1:]
	if len(rest) < 3 || (len(rest) > 3 && rest[3] != ' ') {
		return nil, errorf(CodeMalformedStartLine, "status code must be 3 digits")
	}

	status := 0
	for _, c := range rest[:3] {
		if c < '0' || c > '9' {
			return nil, errorf(CodeMalformedStartLine, "invalid character %q in status code", c)
		}
		status = status*10 + int(c-'0')
	}
	if status < 100 {
		return nil, errorf(CodeMalformedStartLine, "status code %d out of range", status)
	}

	var reason []byte
	if len(rest) > 4 {
		reason = rest[4:]
	}
	for _, c := range reason {
		if !isFieldValueChar(c) {
			return nil, errorf(CodeMalformedStartLine, "invalid character %q in reason phrase", c)
		}
	}

	return &Head{Status: status, Reason: string(reason), Version: vers}, nil
}

// parseVersion accepts HTTP/1.0 and HTTP/1.1 only.
func parseVersion(b []byte) (Version, bool) {
	if len(b) != 8 || !bytes.HasPrefix(b, []byte("HTTP/")) || b[6] != '.' {
		return Version{}, false
	}

	if b[5] != '1' || (b[7] != '0' && b[7] != '1') {
		return Version{}, false
	}

	return Version{Major: 1, Minor: int(b[7] - '0')}, true
}

func isOWS(c byte) bool { return c == ' ' || c == '\t' }

// isFieldValueChar reports VCHAR, SP, HTAB and obs-text.
func isFieldValueChar(c byte) bool {
	return c == '\t' || (c >= ' ' && c != 0x7f)
}

func isTokenChar(c byte) bool {
	return int(c) < len(tokenTable) && tokenTable[c]
}

var tokenTable = func() [127]bool {
	var t [127]bool
	for c := '0'; c <= '9'; c++ {
		t[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		t[c] = true
		t[c-'a'+'A'] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		t[c] = true
	}

	return t
}()
