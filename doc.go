// Package bwire implements the HTTP/1.x wire layer: a streaming codec that turns a byte connection into a sequence
// of request and response messages and back, the state machine that governs keep-alive and pipelining on a
// connection, and the decoding of multipart bodies.
//
// # Overview
//
// bwire is built from a few small pieces that compose:
//
//   - [HeaderParser] tokenizes and validates a start-line and header block from a byte window
//   - [Body] exposes a message body as a lazy, single-pass stream according to its [Framing]
//   - [Codec] decodes message heads from a [DecodeBuffer] and encodes whole messages
//   - [ConnState] tracks keep-alive eligibility, in-flight requests and when a connection must close
//   - [MultipartReader] decodes a body into its parts
//
// [Conn] puts them together for the server side of a connection:
//
//	conn := bwire.NewConn(nc, bwire.DefaultConfig())
//	for conn.State() < bwire.StateClosing {
//	    req, err := conn.ReadRequest()
//	    if err != nil {
//	        _ = conn.WriteError(err)
//	        break
//	    }
//
//	    data, _ := io.ReadAll(req.Body)
//	    _ = conn.WriteResponse(req, bwire.NewResponseHead(200), bwire.BytesBody(data))
//	}
//
// # Resumable Decoding
//
// Parsing never blocks and keeps no state of its own. Each decode attempt either consumes bytes from the buffer
// and returns a result, or returns [ErrIncomplete] and leaves the buffer untouched so the attempt can be repeated
// once more bytes were appended. Header names and values are parsed as views into the buffer and copied into owned
// strings only once the whole head is valid.
//
// # Bodies
//
// The framing of a body follows from the head: Transfer-Encoding chunked, a Content-Length, the end of the
// connection (responses only) or no body at all. A message that carries both Transfer-Encoding and Content-Length,
// or conflicting Content-Length values, is rejected with [CodeInvalidFraming].
//
// Bodies are read on demand: [Body.Next] returns views into the connection buffer without copying, [Body.Read]
// copies. A body must be read to its end, or skipped with [Body.Drain], before the next message can be decoded.
// Closing a body early abandons it and the connection will be closed since the start of the next message can no
// longer be found.
//
// Chunked trailers are kept apart from the head and available from [Body.Trailer]. Set [Config.MergeTrailers] to
// have them appended to the head's header list once the body is exhausted.
//
// # Encoding
//
// Outgoing bodies are described by a [Producer]. A body of known size is sent with Content-Length, a body of unknown
// size is sent chunked with every produced piece becoming one chunk. Encoding fails only when the writer fails.
//
// # Errors
//
// Decode errors are [*Error] values that carry a [Code]. Every code except the ones for misuse of the API is fatal
// to the connection: the framing of the byte stream can no longer be trusted. [IsFatal] tells them apart and
// [Code.Status] gives the status code a server answers with before it closes the connection.
//
// # Pipelining
//
// Several requests may be read before the first is answered. Responses are written strictly in the order the
// requests were read; writing a response out of turn fails with [CodeOutOfTurn] and writes nothing.
package bwire
