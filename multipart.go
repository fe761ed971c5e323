package bwire

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// maxBoundaryLen is the longest boundary a multipart body may use.
const maxBoundaryLen = 70

// ParseBoundary returns the boundary parameter of a multipart Content-Type value.
func ParseBoundary(contentType string) (string, error) {
	if contentType == "" {
		return "", errorf(CodeMissingBoundary, "no content type")
	}

	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", NewError(CodeMissingBoundary, errors.Wrapf(err, "parse content type %q", contentType))
	}

	if !strings.HasPrefix(mt, "multipart/") {
		return "", errorf(CodeMissingBoundary, "content type %q is not multipart", mt)
	}

	boundary := params["boundary"]
	if err := validBoundary(boundary); err != nil {
		return "", err
	}

	return boundary, nil
}

func validBoundary(b string) error {
	switch {
	case b == "":
		return errorf(CodeMissingBoundary, "empty boundary")
	case len(b) > maxBoundaryLen:
		return errorf(CodeMissingBoundary, "boundary exceeds %d bytes", maxBoundaryLen)
	case strings.ContainsAny(b, "\r\n"):
		return errorf(CodeMissingBoundary, "boundary contains a line terminator")
	}

	return nil
}

// MultipartReader decodes a multipart body into its parts. Parts are handed out one at a time: the current part must
// be consumed, drained or closed before the next one can be requested.
type MultipartReader struct {
	src    *source
	delim  []byte
	parser *HeaderParser

	current  *Part
	started  bool
	finished bool
	err      error
}

// NewMultipartReader returns a reader of the parts in r that are delimited by boundary.
func NewMultipartReader(r io.Reader, boundary string, cfg Config) *MultipartReader {
	buf := NewDecodeBuffer(cfg.ReadSize)

	// the first delimiter may open the body without a preceding line break
	_, _ = buf.Write(crlf)

	return &MultipartReader{
		src:    &source{buf: buf, r: r, readSize: cfg.ReadSize},
		delim:  []byte("\r\n--" + boundary),
		parser: NewPartHeaderParser(cfg.MaxPartHeaderBytes),
	}
}

// MultipartReader returns a reader for the parts of the request body.
func (r *Request) MultipartReader() (*MultipartReader, error) {
	boundary, err := ParseBoundary(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	return NewMultipartReader(r.Body, boundary, r.cfg), nil
}

// NextPart returns the next part. It returns io.EOF after the closing delimiter; the epilogue that follows it is
// discarded.
func (mr *MultipartReader) NextPart() (*Part, error) {
	if mr.err != nil {
		return nil, mr.err
	}

	if mr.current != nil && !mr.current.done {
		return nil, errorf(CodePartNotConsumed, "previous part was not consumed")
	}

	if !mr.started {
		mr.started = true
		if err := mr.skip(); err != nil {
			return nil, mr.fail(err)
		}
	}

	if mr.finished {
		return nil, io.EOF
	}

	for {
		hdr, n, err := mr.parser.ParseFields(mr.src.buf.Window())
		if errors.Is(err, ErrIncomplete) {
			if err := mr.fill("part header"); err != nil {
				return nil, mr.fail(err)
			}
			continue
		}
		if err != nil {
			return nil, mr.fail(err)
		}

		mr.src.buf.Advance(n)
		mr.current = &Part{Header: hdr, mr: mr}

		return mr.current, nil
	}
}

func (mr *MultipartReader) fail(err error) error {
	mr.err = err
	return err
}

// fill reads more of the body. Running out of body before the closing delimiter means the boundary is missing.
func (mr *MultipartReader) fill(what string) error {
	err := mr.src.fill()
	if errors.Is(err, io.EOF) {
		return errorf(CodeBoundaryNotFound, "body ended in %s before the closing boundary", what)
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", what)
	}

	return nil
}

// skip discards content up to and including the next delimiter.
func (mr *MultipartReader) skip() error {
	for {
		_, end, err := mr.next(-1)
		if err != nil || end {
			return err
		}
	}
}

type delimMatch int

const (
	delimNone delimMatch = iota
	delimMore
	delimPart
	delimLast
)

// matchDelimiter inspects the window that starts with the delimiter bytes. A delimiter line is followed by "--" for
// the closing delimiter, or by optional linear whitespace and CRLF. It returns the length of the delimiter line.
func (mr *MultipartReader) matchDelimiter(window []byte) (delimMatch, int) {
	rest := window[len(mr.delim):]
	if len(rest) < 2 {
		return delimMore, 0
	}

	if rest[0] == '-' && rest[1] == '-' {
		return delimLast, len(mr.delim) + 2
	}

	lwsp := 0
	for lwsp < len(rest) && isOWS(rest[lwsp]) {
		lwsp++
	}

	switch {
	case lwsp > mr.parser.maxBytes:
		return delimNone, 0
	case lwsp+2 > len(rest):
		return delimMore, 0
	case rest[lwsp] == '\r' && rest[lwsp+1] == '\n':
		return delimPart, len(mr.delim) + lwsp + 2
	default:
		return delimNone, 0
	}
}

// next returns the next piece of content before the upcoming delimiter. When the delimiter is reached it is consumed
// and end is true.
func (mr *MultipartReader) next(limit int) ([]byte, bool, error) {
	buf := mr.src.buf
	for {
		window := buf.Window()

		avail := len(window)
		switch i := bytes.Index(window, mr.delim); {
		case i > 0:
			avail = i
		case i == 0:
			match, n := mr.matchDelimiter(window)
			switch match {
			case delimMore:
				if err := mr.fill("delimiter"); err != nil {
					return nil, false, err
				}
				continue
			case delimPart, delimLast:
				buf.Advance(n)
				if match == delimLast {
					mr.finished = true
					return nil, true, mr.discardEpilogue()
				}

				return nil, true, nil
			case delimNone:
				// looks like a delimiter but continues as content. The delimiter holds a single CR, at its start, so
				// no other delimiter can begin inside it.
				avail = len(mr.delim)
			}
		default:
			avail -= partialSuffix(window, mr.delim)
		}

		if avail == 0 {
			if err := mr.fill("part body"); err != nil {
				return nil, false, err
			}
			continue
		}

		if limit >= 0 && avail > limit {
			avail = limit
		}

		view := window[:avail:avail]
		buf.Advance(avail)

		return view, false, nil
	}
}

// discardEpilogue consumes everything after the closing delimiter.
func (mr *MultipartReader) discardEpilogue() error {
	for {
		mr.src.buf.Advance(mr.src.buf.Len())

		err := mr.src.fill()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read epilogue")
		}
	}
}

// partialSuffix returns the length of the longest suffix of window that is a proper prefix of delim.
func partialSuffix(window, delim []byte) int {
	from := max(0, len(window)-len(delim)+1)
	for i := from; i < len(window); i++ {
		if window[i] == '\r' && bytes.HasPrefix(delim, window[i:]) {
			return len(window) - i
		}
	}

	return 0
}

// Part is one part of a multipart body: its header fields and the stream of its content.
type Part struct {
	Header Header

	mr     *MultipartReader
	done   bool
	closed bool
}

// Next returns the next piece of the part's content. The slice is a view that is valid until the next call on the
// part. It returns io.EOF at the end of the part.
func (p *Part) Next() ([]byte, error) {
	return p.next(-1)
}

func (p *Part) next(limit int) ([]byte, error) {
	if p.done {
		return nil, io.EOF
	}
	if p.closed {
		return nil, ErrBodyClosed
	}
	if p.mr.err != nil {
		return nil, p.mr.err
	}

	view, end, err := p.mr.next(limit)
	if err != nil {
		return nil, p.mr.fail(err)
	}
	if end {
		p.done = true
		return nil, io.EOF
	}

	return view, nil
}

// Read implements io.Reader.
func (p *Part) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	view, err := p.next(len(b))
	if err != nil {
		return 0, err
	}

	return copy(b, view), nil
}

// Drain consumes and discards the rest of the part.
func (p *Part) Drain() error {
	for {
		_, err := p.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close skips the rest of the part so the reader can advance to the next one.
func (p *Part) Close() error {
	if p.closed {
		return nil
	}

	err := p.Drain()
	p.closed = true

	return err
}

// FormName returns the name parameter of a "form-data" Content-Disposition.
func (p *Part) FormName() string {
	disp, params := p.disposition()
	if disp != "form-data" {
		return ""
	}

	return params["name"]
}

// FileName returns the base name of the filename parameter of the Content-Disposition.
func (p *Part) FileName() string {
	_, params := p.disposition()

	filename, ok := params["filename"]
	if !ok || filename == "" {
		return ""
	}

	return filepath.Base(filename)
}

func (p *Part) disposition() (string, map[string]string) {
	disp, params, err := mime.ParseMediaType(p.Header.Get("Content-Disposition"))
	if err != nil {
		return "", nil
	}

	return disp, params
}

// MultipartWriter writes a multipart body.
type MultipartWriter struct {
	w        io.Writer
	boundary string
	parts    int
	closed   bool
}

// NewMultipartWriter returns a writer with a random boundary.
func NewMultipartWriter(w io.Writer) *MultipartWriter {
	return &MultipartWriter{w: w, boundary: randomBoundary()}
}

// Boundary returns the writer's boundary.
func (mw *MultipartWriter) Boundary() string { return mw.boundary }

// SetBoundary overrides the random boundary. It must be called before the first part is created.
func (mw *MultipartWriter) SetBoundary(boundary string) error {
	if mw.parts > 0 {
		return errors.New("bwire: boundary set after parts were written")
	}

	if err := validBoundary(boundary); err != nil {
		return err
	}

	mw.boundary = boundary

	return nil
}

// ContentType returns the Content-Type value for a multipart body of the given subtype, such as "form-data".
func (mw *MultipartWriter) ContentType(subtype string) string {
	return mime.FormatMediaType("multipart/"+subtype, map[string]string{"boundary": mw.boundary})
}

// CreatePart writes the delimiter and header block of a new part. The part's content is written to the returned
// writer and ends when the next part is created or the writer is closed.
func (mw *MultipartWriter) CreatePart(h Header) (io.Writer, error) {
	if mw.closed {
		return nil, errors.New("bwire: part created on closed multipart writer")
	}

	var b []byte
	if mw.parts > 0 {
		b = append(b, crlf...)
	}

	b = append(b, "--"+mw.boundary+"\r\n"...)
	b = appendFields(b, h)
	b = append(b, crlf...)

	mw.parts++
	if _, err := mw.w.Write(b); err != nil {
		return nil, errors.Wrap(err, "write part header")
	}

	return mw.w, nil
}

// CreateFormField creates a form-data part for a field with the given name.
func (mw *MultipartWriter) CreateFormField(name string) (io.Writer, error) {
	return mw.CreatePart(Header{{
		Name:  "Content-Disposition",
		Value: mime.FormatMediaType("form-data", map[string]string{"name": name}),
	}})
}

// CreateFormFile creates a form-data part for a file upload.
func (mw *MultipartWriter) CreateFormFile(name, filename string) (io.Writer, error) {
	return mw.CreatePart(Header{
		{
			Name:  "Content-Disposition",
			Value: mime.FormatMediaType("form-data", map[string]string{"name": name, "filename": filename}),
		},
		{Name: "Content-Type", Value: "application/octet-stream"},
	})
}

// Close writes the closing delimiter.
func (mw *MultipartWriter) Close() error {
	if mw.closed {
		return nil
	}

	mw.closed = true

	var b []byte
	if mw.parts > 0 {
		b = append(b, crlf...)
	}

	b = append(b, "--"+mw.boundary+"--\r\n"...)
	if _, err := mw.w.Write(b); err != nil {
		return errors.Wrap(err, "write closing delimiter")
	}

	return nil
}

func randomBoundary() string {
	var buf [30]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		panic(err)
	}

	return hex.EncodeToString(buf[:])
}
