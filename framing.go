package bwire

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// FramingKind tells how the end of a message body is found.
type FramingKind int

const (
	FramingNone FramingKind = iota
	FramingFixed
	FramingChunked
	FramingClose
)

func (k FramingKind) String() string {
	switch k {
	case FramingNone:
		return "None"
	case FramingFixed:
		return "FixedLength"
	case FramingChunked:
		return "Chunked"
	case FramingClose:
		return "CloseDelimited"
	default:
		return "FramingKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Framing is the body framing of one message. Length is only meaningful for [FramingFixed].
type Framing struct {
	Kind   FramingKind
	Length int64
}

// RequestFraming classifies the body framing of a request head.
func RequestFraming(h *Head) (Framing, error) {
	te, hasTE, err := transferCodings(h)
	if err != nil {
		return Framing{}, err
	}

	cl, hasCL, err := contentLength(h)
	if err != nil {
		return Framing{}, err
	}

	switch {
	case hasTE && hasCL:
		return Framing{}, errorf(CodeInvalidFraming, "both Transfer-Encoding and Content-Length present")
	case hasTE:
		if te[len(te)-1] != "chunked" {
			return Framing{}, errorf(CodeInvalidFraming,
				"request transfer coding %q is not chunked, body length cannot be determined", te[len(te)-1])
		}

		return Framing{Kind: FramingChunked}, nil
	case hasCL && cl > 0:
		return Framing{Kind: FramingFixed, Length: cl}, nil
	default:
		return Framing{Kind: FramingNone}, nil
	}
}

// ResponseFraming classifies the body framing of a response head given the method of the request it answers.
func ResponseFraming(h *Head, requestMethod string) (Framing, error) {
	if !ResponseHasBody(requestMethod, h.Status) {
		return Framing{Kind: FramingNone}, nil
	}

	te, hasTE, err := transferCodings(h)
	if err != nil {
		return Framing{}, err
	}

	cl, hasCL, err := contentLength(h)
	if err != nil {
		return Framing{}, err
	}

	switch {
	case hasTE && hasCL:
		return Framing{}, errorf(CodeInvalidFraming, "both Transfer-Encoding and Content-Length present")
	case hasTE && te[len(te)-1] == "chunked":
		return Framing{Kind: FramingChunked}, nil
	case hasTE:
		return Framing{Kind: FramingClose}, nil
	case hasCL && cl > 0:
		return Framing{Kind: FramingFixed, Length: cl}, nil
	case hasCL:
		return Framing{Kind: FramingNone}, nil
	default:
		return Framing{Kind: FramingClose}, nil
	}
}

// ResponseHasBody reports whether a response with the given status to a request with the given method may carry a
// body at all.
func ResponseHasBody(requestMethod string, status int) bool {
	switch {
	case requestMethod == http.MethodHead:
		return false
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	case requestMethod == http.MethodConnect && status >= 200 && status < 300:
		return false
	default:
		return true
	}
}

// transferCodings returns the lower-cased transfer codings in the order they were applied.
func transferCodings(h *Head) ([]string, bool, error) {
	if !h.Header.Has("Transfer-Encoding") {
		return nil, false, nil
	}

	codings := lo.Map(h.Header.Tokens("Transfer-Encoding"), func(t string, _ int) string {
		name, _, _ := strings.Cut(t, ";")
		return strings.TrimSpace(name)
	})
	if len(codings) == 0 {
		return nil, false, errorf(CodeInvalidFraming, "empty Transfer-Encoding")
	}

	if h.Version == HTTP10 && h.IsRequest() {
		return nil, false, errorf(CodeInvalidFraming, "Transfer-Encoding in an HTTP/1.0 request")
	}

	for i, c := range codings {
		if c == "chunked" && i != len(codings)-1 {
			return nil, false, errorf(CodeInvalidFraming, "chunked is not the final transfer coding")
		}
	}

	return codings, true, nil
}

// contentLength returns the declared body length. Repeated fields and comma separated lists are accepted as long as
// every value is the same.
func contentLength(h *Head) (int64, bool, error) {
	vals := h.Header.Values("Content-Length")
	if len(vals) == 0 {
		return 0, false, nil
	}

	var (
		n     int64 = -1
		found bool
	)
	for _, v := range vals {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			m, err := parseContentLength(s)
			if err != nil {
				return 0, false, err
			}

			if found && m != n {
				return 0, false, errorf(CodeInvalidFraming, "conflicting Content-Length values %d and %d", n, m)
			}

			n, found = m, true
		}
	}

	return n, true, nil
}

func parseContentLength(s string) (int64, error) {
	if s == "" {
		return 0, errorf(CodeInvalidFraming, "empty Content-Length")
	}

	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, errorf(CodeInvalidFraming, "invalid Content-Length %q", s)
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, NewError(CodeInvalidFraming, err)
	}

	return n, nil
}
