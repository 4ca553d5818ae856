// Package sse implements the subset of the text/event-stream framing
// rules this service speaks on both sides: a pull-based Scanner for
// decoding upstream response bodies and an Encoder for the outbound
// batch stream.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const defaultEventName = "message"

// Event is one decoded frame: the event name (defaulting to "message")
// and the concatenated data lines with the trailing newline trimmed.
type Event struct {
	Event string
	Data  string
}

// Scanner lazily decodes frames from a byte stream. It is not seekable
// and cannot be restarted; construct a new one per stream.
type Scanner struct {
	r       *bufio.Reader
	event   string
	data    strings.Builder
	pending *Event
	err     error
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		r:     bufio.NewReader(r),
		event: defaultEventName,
	}
}

// Next returns the next complete frame, blocking on the underlying
// reader as needed. It returns io.EOF once the stream is exhausted; any
// partially accumulated data at stream end is flushed as a final frame
// before EOF is reported.
func (s *Scanner) Next() (Event, error) {
	if s.pending != nil {
		ev := *s.pending
		s.pending = nil
		return ev, nil
	}
	if s.err != nil {
		return Event{}, s.err
	}

	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			s.err = err
			if err == io.EOF && line == "" {
				if ev, ok := s.flush(); ok {
					return ev, nil
				}
				return Event{}, io.EOF
			}
			if err != io.EOF {
				return Event{}, err
			}
		}

		line = strings.TrimRight(line, "\r\n")
		done := s.err == io.EOF

		switch {
		case line == "":
			if ev, ok := s.flush(); ok {
				return ev, nil
			}
		case strings.HasPrefix(line, "event:"):
			s.event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			s.data.WriteString(strings.TrimPrefix(line[len("data:"):], " "))
			s.data.WriteByte('\n')
		}

		if done {
			if ev, ok := s.flush(); ok {
				return ev, nil
			}
			return Event{}, io.EOF
		}
	}
}

func (s *Scanner) flush() (Event, bool) {
	if s.data.Len() == 0 {
		s.event = defaultEventName
		return Event{}, false
	}
	ev := Event{
		Event: s.event,
		Data:  strings.TrimRight(s.data.String(), "\n"),
	}
	s.event = defaultEventName
	s.data.Reset()
	return ev, true
}

// Encoder writes frames in the same format the Scanner consumes.
type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write emits one frame. Multi-line data is split into one data: line
// per source line.
func (e *Encoder) Write(ev Event) error {
	name := ev.Event
	if name == "" {
		name = defaultEventName
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\n", name); err != nil {
		return err
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		if _, err := fmt.Fprintf(e.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(e.w, "\n")
	return err
}
