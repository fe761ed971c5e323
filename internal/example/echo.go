package example

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/advdv/bwire"
	"github.com/advdv/bwire/bwsrv"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Echo describes a request as the echo handler saw it.
type Echo struct {
	Method   string     `json:"method"`
	Target   string     `json:"target"`
	Version  string     `json:"version"`
	Headers  [][]string `json:"headers"`
	Framing  string     `json:"framing"`
	BodySize int64      `json:"body_size"`
	Trailer  [][]string `json:"trailer,omitempty"`
	Parts    []EchoPart `json:"parts,omitempty"`
}

// EchoPart describes one part of a multipart request.
type EchoPart struct {
	FormName string     `json:"form_name,omitempty"`
	FileName string     `json:"file_name,omitempty"`
	Headers  [][]string `json:"headers"`
	Size     int64      `json:"size"`
}

func fieldPairs(h bwire.Header) [][]string {
	pairs := make([][]string, 0, len(h))
	for _, f := range h {
		pairs = append(pairs, []string{f.Name, f.Value})
	}

	return pairs
}

// EchoHandler answers every request with a JSON description of it. Multipart bodies are decoded part by part.
func EchoHandler() bwsrv.Handler {
	return bwsrv.HandlerFunc(func(ctx context.Context, w bwsrv.ResponseWriter, r *bwsrv.Request) error {
		echo := Echo{
			Method:  r.Method,
			Target:  r.Target,
			Version: r.Version.String(),
			Headers: fieldPairs(r.Header),
			Framing: r.Body.Framing().Kind.String(),
		}

		if boundary, err := bwire.ParseBoundary(r.Header.Get("Content-Type")); err == nil {
			mr := bwire.NewMultipartReader(r.Content, boundary, bwire.DefaultConfig())

			for {
				part, err := mr.NextPart()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return err
				}

				n, err := io.Copy(io.Discard, part)
				if err != nil {
					return err
				}

				echo.BodySize += n
				echo.Parts = append(echo.Parts, EchoPart{
					FormName: part.FormName(),
					FileName: part.FileName(),
					Headers:  fieldPairs(part.Header),
					Size:     n,
				})
			}
		} else {
			n, err := io.Copy(io.Discard, r.Content)
			if err != nil {
				return err
			}

			echo.BodySize = n
		}

		if tr := r.Body.Trailer(); len(tr) > 0 {
			echo.Trailer = fieldPairs(tr)
		}

		Log(ctx).Debug("echo", zap.Int64("body_size", echo.BodySize))
		bwsrv.Span(ctx).SetAttributes(
			attribute.Int64("echo.body_size", echo.BodySize),
			attribute.Int("echo.parts", len(echo.Parts)))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		return json.NewEncoder(w).Encode(echo)
	})
}
