package bwire

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Coding is a content coding: a transform stage that is applied to a body in one direction and undone in the other.
type Coding interface {
	Name() string
	NewReader(r io.Reader) (io.ReadCloser, error)
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

var (
	gzipReaderPool = sync.Pool{New: func() any { return new(gzip.Reader) }}
	brReaderPool   = sync.Pool{New: func() any { return brotli.NewReader(nil) }}
)

type gzipCoding struct{}

func (gzipCoding) Name() string { return "gzip" }

func (gzipCoding) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, _ := gzipReaderPool.Get().(*gzip.Reader)
	if err := zr.Reset(r); err != nil {
		gzipReaderPool.Put(zr)
		return nil, errors.Wrap(err, "init gzip reader")
	}

	return &pooledReader{Reader: zr, close: func() error {
		err := zr.Close()
		gzipReaderPool.Put(zr)

		return err //nolint:wrapcheck
	}}, nil
}

func (gzipCoding) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriter(w), nil
}

type deflateCoding struct{}

func (deflateCoding) Name() string { return "deflate" }

// NewReader accepts zlib wrapped streams as well as raw deflate, which some peers send instead.
func (deflateCoding) NewReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	hdr, err := br.Peek(2)
	if err == nil && isZlibHeader(hdr) {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "init zlib reader")
		}

		return zr, nil
	}

	return flate.NewReader(br), nil
}

func (deflateCoding) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zlib.NewWriter(w), nil
}

func isZlibHeader(b []byte) bool {
	return b[0]&0x0f == 8 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

type brCoding struct{}

func (brCoding) Name() string { return "br" }

func (brCoding) NewReader(r io.Reader) (io.ReadCloser, error) {
	br, _ := brReaderPool.Get().(*brotli.Reader)
	if err := br.Reset(r); err != nil {
		brReaderPool.Put(br)
		return nil, errors.Wrap(err, "init brotli reader")
	}

	return &pooledReader{Reader: br, close: func() error {
		brReaderPool.Put(br)
		return nil
	}}, nil
}

func (brCoding) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
}

type pooledReader struct {
	io.Reader
	close func() error
}

func (r *pooledReader) Close() error {
	if r.close == nil {
		return nil
	}

	fn := r.close
	r.close = nil

	return fn()
}

// Gzip, Deflate and Brotli are the built-in content codings.
var (
	Gzip    Coding = gzipCoding{}
	Deflate Coding = deflateCoding{}
	Brotli  Coding = brCoding{}
)

// Codings is a registry of content codings. The registration order is the order of preference when negotiating.
type Codings struct {
	byName map[string]Coding
	order  []string
}

// NewCodings returns a registry with the given codings.
func NewCodings(cs ...Coding) *Codings {
	reg := &Codings{byName: map[string]Coding{}}
	for _, c := range cs {
		name := strings.ToLower(c.Name())
		if _, ok := reg.byName[name]; !ok {
			reg.order = append(reg.order, name)
		}

		reg.byName[name] = c
	}

	return reg
}

// DefaultCodings returns a registry with brotli, gzip and deflate, in that order of preference.
func DefaultCodings() *Codings {
	return NewCodings(Brotli, Gzip, Deflate)
}

// Lookup returns the coding with the given name.
func (cs *Codings) Lookup(name string) (Coding, bool) {
	c, ok := cs.byName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Names returns the registered names in order of preference.
func (cs *Codings) Names() []string { return slices.Clone(cs.order) }

// DecodeContent undoes the content codings listed in h's Content-Encoding fields. Codings are listed in the order
// they were applied, so they are undone in reverse. Closing the returned reader releases every stage but does not
// close r.
func (cs *Codings) DecodeContent(h Header, r io.Reader) (io.ReadCloser, error) {
	names := lo.Reject(h.Tokens("Content-Encoding"), func(n string, _ int) bool { return n == "identity" })

	stages := make([]io.ReadCloser, 0, len(names))
	closeAll := func() error {
		var err error
		for i := len(stages) - 1; i >= 0; i-- {
			err = errors.CombineErrors(err, stages[i].Close())
		}

		return err
	}

	cur := r
	for i := len(names) - 1; i >= 0; i-- {
		c, ok := cs.Lookup(names[i])
		if !ok {
			_ = closeAll()
			return nil, errorf(CodeUnsupportedEncoding, "unsupported content coding %q", names[i])
		}

		rc, err := c.NewReader(cur)
		if err != nil {
			_ = closeAll()
			return nil, NewError(CodeUnsupportedEncoding, err)
		}

		stages = append(stages, rc)
		cur = rc
	}

	return &pooledReader{Reader: cur, close: closeAll}, nil
}

// EncodeContent returns a producer that emits p's content encoded with the named coding. The encoded size is not
// known upfront, so the result is always sent chunked (or close delimited).
func (cs *Codings) EncodeContent(name string, p Producer) (Producer, error) {
	c, ok := cs.Lookup(name)
	if !ok {
		return nil, errorf(CodeUnsupportedEncoding, "unsupported content coding %q", name)
	}

	enc := &encodedBody{src: p}
	w, err := c.NewWriter(&enc.buf)
	if err != nil {
		return nil, errors.Wrapf(err, "init %s writer", name)
	}

	enc.w = w

	return enc, nil
}

type encodedBody struct {
	src  Producer
	w    io.WriteCloser
	buf  bytes.Buffer
	out  []byte
	done bool
}

func (b *encodedBody) Size() int64 { return -1 }

func (b *encodedBody) Trailer() Header {
	if t, ok := b.src.(Trailered); ok {
		return t.Trailer()
	}

	return nil
}

func (b *encodedBody) Next() ([]byte, error) {
	for {
		if b.buf.Len() > 0 {
			b.out = append(b.out[:0], b.buf.Bytes()...)
			b.buf.Reset()

			return b.out, nil
		}
		if b.done {
			return nil, io.EOF
		}

		piece, err := b.src.Next()
		switch {
		case errors.Is(err, io.EOF):
			b.done = true
			if err := b.w.Close(); err != nil {
				return nil, errors.Wrap(err, "finish encoding")
			}
		case err != nil:
			return nil, err
		default:
			if _, err := b.w.Write(piece); err != nil {
				return nil, errors.Wrap(err, "encode body")
			}
		}
	}
}

// Negotiate picks the most preferred registered coding the Accept-Encoding value allows. It returns "identity" when
// no coding is acceptable or the value is empty.
func (cs *Codings) Negotiate(acceptEncoding string) string {
	qs := map[string]float64{}
	for _, item := range strings.Split(acceptEncoding, ",") {
		name, q := parseQuality(item)
		if name != "" {
			qs[name] = q
		}
	}

	best, bestQ := "identity", 0.0
	for _, name := range cs.order {
		q, ok := qs[name]
		if !ok {
			q, ok = qs["*"]
		}
		if ok && q > bestQ {
			best, bestQ = name, q
		}
	}

	return best
}

// parseQuality splits "name;q=0.5" into its lower-cased name and quality, which defaults to 1.
func parseQuality(item string) (string, float64) {
	name, params, _ := strings.Cut(item, ";")
	name = strings.ToLower(strings.TrimSpace(name))

	q := 1.0
	for _, param := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}

		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || f < 0 || f > 1 {
			return name, 0
		}

		q = f
	}

	return name, q
}

var defaultCodings = DefaultCodings()

// DecodeContent undoes the content codings of a message with the default registry.
func DecodeContent(h Header, r io.Reader) (io.ReadCloser, error) {
	return defaultCodings.DecodeContent(h, r)
}

// EncodeContent encodes p with the named coding from the default registry.
func EncodeContent(name string, p Producer) (Producer, error) {
	return defaultCodings.EncodeContent(name, p)
}

// NegotiateCoding picks a coding from the default registry for the given Accept-Encoding value.
func NegotiateCoding(acceptEncoding string) string {
	return defaultCodings.Negotiate(acceptEncoding)
}
