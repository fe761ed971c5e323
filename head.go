package bwire

import (
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// Version is an HTTP/1.x protocol version.
type Version struct {
	Major, Minor int
}

var (
	HTTP10 = Version{1, 0}
	HTTP11 = Version{1, 1}
)

func (v Version) String() string {
	return "HTTP/" + strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// AtLeast reports whether v is the same as or newer than o.
func (v Version) AtLeast(o Version) bool {
	return v.Major > o.Major || (v.Major == o.Major && v.Minor >= o.Minor)
}

// Field is a single header line. The name keeps the case it was received or set with.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields. Duplicates are kept as separate entries. Lookups are
// case-insensitive.
type Header []Field

// Get returns the value of the first field with the given name.
func (h Header) Get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}

	return ""
}

// Values returns all values of fields with the given name, in order.
func (h Header) Values(name string) []string {
	var vals []string
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			vals = append(vals, f.Value)
		}
	}

	return vals
}

// Has reports whether a field with the given name exists.
func (h Header) Has(name string) bool {
	return lo.ContainsBy(h, func(f Field) bool { return strings.EqualFold(f.Name, name) })
}

// Add appends a field.
func (h *Header) Add(name, value string) {
	*h = append(*h, Field{Name: name, Value: value})
}

// Set replaces all fields with the given name by a single field at the position of the first one, or appends it.
func (h *Header) Set(name, value string) {
	idx := -1
	out := (*h)[:0]
	for _, f := range *h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
			continue
		}
		if idx < 0 {
			idx = len(out)
			out = append(out, Field{Name: name, Value: value})
		}
	}

	if idx < 0 {
		out = append(out, Field{Name: name, Value: value})
	}

	*h = out
}

// Del removes all fields with the given name.
func (h *Header) Del(name string) {
	*h = lo.Reject(*h, func(f Field, _ int) bool { return strings.EqualFold(f.Name, name) })
}

// Clone returns a copy that shares no memory with h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}

	return append(Header(nil), h...)
}

// Tokens returns the comma separated, lower-cased tokens of all fields with the given name.
func (h Header) Tokens(name string) []string {
	var toks []string
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
				toks = append(toks, t)
			}
		}
	}

	return toks
}

// HasToken reports whether any field with the given name lists token (case-insensitive).
func (h Header) HasToken(name, token string) bool {
	return lo.Contains(h.Tokens(name), strings.ToLower(token))
}

// Head is the start-line and header block of a request or a response. For requests Method and Target are set, for
// responses Status and Reason.
type Head struct {
	Method  string
	Target  string
	Status  int
	Reason  string
	Version Version
	Header  Header
}

// NewRequestHead returns an HTTP/1.1 request head.
func NewRequestHead(method, target string, fields ...Field) *Head {
	return &Head{Method: method, Target: target, Version: HTTP11, Header: Header(fields).Clone()}
}

// NewResponseHead returns an HTTP/1.1 response head with the standard reason phrase.
func NewResponseHead(status int, fields ...Field) *Head {
	return &Head{Status: status, Reason: statusText(status), Version: HTTP11, Header: Header(fields).Clone()}
}

// IsRequest reports whether the head carries a request line.
func (h *Head) IsRequest() bool { return h.Method != "" }

// Clone returns a deep copy of the head.
func (h *Head) Clone() *Head {
	c := *h
	c.Header = h.Header.Clone()

	return &c
}
