package bwire

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// State is the state of a connection.
type State int

const (
	// StateIdle means no request is in flight.
	StateIdle State = iota
	// StateProcessingRequest means at least one decoded request has not been answered yet.
	StateProcessingRequest
	// StateAwaitingBody means every request was answered but the last request body is still being read.
	StateAwaitingBody
	// StateClosing means no further request will be decoded; pending responses may still be written.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateProcessingRequest:
		return "ProcessingRequest"
	case StateAwaitingBody:
		return "AwaitingBody"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Ticket identifies a decoded request within its connection. Tickets are handed out in decode order and responses
// must be written in ticket order.
type Ticket uint64

type cycle struct {
	ticket    Ticket
	keepAlive bool
	writing   bool
	closeNext bool
}

// ConnState tracks keep-alive eligibility and pipelined requests of one connection. It is owned by a single
// connection task and does no locking.
type ConnState struct {
	state    State
	closing  bool
	reason   string
	maxDepth int

	next     Ticket
	inflight []*cycle
	bodyOpen bool
	bodyOf   Ticket
}

// NewConnState returns the state of a fresh connection.
func NewConnState(maxDepth int) *ConnState {
	return &ConnState{maxDepth: maxDepth, next: 1}
}

// State returns the current state.
func (s *ConnState) State() State { return s.state }

// Reason returns why the connection is closing, if it is.
func (s *ConnState) Reason() string { return s.reason }

// InFlight returns the number of decoded requests that have not been answered.
func (s *ConnState) InFlight() int { return len(s.inflight) }

// KeepAlive computes whether a message allows the connection to be reused. An explicit Connection header overrides
// the default of the protocol version: HTTP/1.1 keeps alive, HTTP/1.0 closes.
func KeepAlive(v Version, h Header) bool {
	toks := h.Tokens("Connection")
	for _, t := range toks {
		if t == "close" {
			return false
		}
	}
	for _, t := range toks {
		if t == "keep-alive" {
			return true
		}
	}

	return v.AtLeast(HTTP11)
}

// CanDecode returns an error when the next request may not be decoded.
func (s *ConnState) CanDecode() error {
	switch {
	case s.state == StateClosed, s.closing:
		return NewError(CodeConnClosing, errors.Newf("connection is closing: %s", s.reason))
	case s.bodyOpen:
		return NewError(CodeOutOfTurn, errors.Newf("body of request %d is still being read", s.bodyOf))
	}

	return nil
}

// RequestDecoded records a decoded request head and returns its ticket.
func (s *ConnState) RequestDecoded(head *Head, hasBody bool) (Ticket, error) {
	if err := s.CanDecode(); err != nil {
		return 0, err
	}

	if len(s.inflight) >= s.maxDepth {
		s.Close(fmt.Sprintf("pipelining depth of %d exceeded", s.maxDepth))
		return 0, NewError(CodeConnClosing, errors.New("pipelining depth exceeded"))
	}

	c := &cycle{ticket: s.next, keepAlive: KeepAlive(head.Version, head.Header)}
	s.next++
	s.inflight = append(s.inflight, c)

	if hasBody {
		s.bodyOpen, s.bodyOf = true, c.ticket
	}

	if !c.keepAlive {
		s.Close(fmt.Sprintf("request %d does not keep the connection alive", c.ticket))
	}

	s.update()

	return c.ticket, nil
}

// BodyEnded records how the body of the request with the given ticket ended.
func (s *ConnState) BodyEnded(t Ticket, how BodyEnd) {
	if !s.bodyOpen || s.bodyOf != t {
		return
	}

	s.bodyOpen = false
	switch how {
	case BodyAbandoned:
		s.Close(fmt.Sprintf("body of request %d abandoned before its end", t))
	case BodyFailed:
		s.Close(fmt.Sprintf("body of request %d violated its framing", t))
	case BodyDrained:
	}

	s.update()
}

// IsNext reports whether the request with the given ticket is the next to be answered.
func (s *ConnState) IsNext(t Ticket) bool {
	return len(s.inflight) > 0 && s.inflight[0].ticket == t
}

// WillClose reports whether the connection will be closed after answering the request with the given ticket.
func (s *ConnState) WillClose(t Ticket) bool {
	if s.closing && len(s.inflight) > 0 && s.inflight[len(s.inflight)-1].ticket == t {
		return true
	}

	for _, c := range s.inflight {
		if c.ticket == t {
			return !c.keepAlive
		}
	}

	return s.closing
}

// BeginResponse claims the turn to write the response for the given ticket. Responses are strictly FIFO: answering
// any request other than the oldest unanswered one is refused.
func (s *ConnState) BeginResponse(t Ticket, head *Head) error {
	if s.state == StateClosed {
		return NewError(CodeConnClosing, errors.New("connection is closed"))
	}

	if !s.IsNext(t) {
		return NewError(CodeOutOfTurn, errors.Newf("response for request %d is not next in line", t))
	}

	c := s.inflight[0]
	if c.writing {
		return NewError(CodeOutOfTurn, errors.Newf("response for request %d is already being written", t))
	}

	c.writing = true
	c.closeNext = !c.keepAlive || !KeepAlive(head.Version, head.Header)

	return nil
}

// ResponseFlushed records that the response for the given ticket is fully on the wire. A close-delimited response
// always ends the connection.
func (s *ConnState) ResponseFlushed(t Ticket, closeDelimited bool) {
	if !s.IsNext(t) || !s.inflight[0].writing {
		return
	}

	c := s.inflight[0]
	s.inflight = s.inflight[1:]

	switch {
	case closeDelimited:
		s.Close(fmt.Sprintf("response %d is delimited by closing the connection", t))
	case c.closeNext:
		s.Close(fmt.Sprintf("response %d does not keep the connection alive", t))
	}

	if s.closing && len(s.inflight) == 0 {
		s.state = StateClosed
		return
	}

	s.update()
}

// Fail moves the connection to Closing because of err.
func (s *ConnState) Fail(err error) {
	s.Close(err.Error())
}

// Close moves the connection to Closing. The first reason given is kept.
func (s *ConnState) Close(reason string) {
	if !s.closing {
		s.closing, s.reason = true, reason
	}

	s.update()
}

// Shutdown moves the connection to its terminal state.
func (s *ConnState) Shutdown() {
	s.Close("shutdown")
	s.state = StateClosed
}

func (s *ConnState) update() {
	switch {
	case s.state == StateClosed:
	case s.closing:
		s.state = StateClosing
	case len(s.inflight) > 0:
		s.state = StateProcessingRequest
	case s.bodyOpen:
		s.state = StateAwaitingBody
	default:
		s.state = StateIdle
	}
}
