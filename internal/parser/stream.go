package parser

import (
	"fmt"
	"iter"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// Yield hands one lead to the consumer. It returns false once the consumer
// has stopped reading.
type Yield func(lead.ParsedLead) bool

// Stream is a finite, single-use lazy sequence of parsed leads. A producer
// error ends the sequence; items yielded before it stay valid and Err
// reports it.
type Stream struct {
	next func() (lead.ParsedLead, bool)
	stop func()
	item lead.ParsedLead
	err  error
	done bool
}

// NewStream wraps a producer. The producer runs lazily as the consumer calls
// Next; a panic inside it is recovered into Err.
func NewStream(produce func(yield Yield) error) *Stream {
	s := &Stream{}
	seq := func(yield func(lead.ParsedLead) bool) {
		defer func() {
			if r := recover(); r != nil {
				s.err = fmt.Errorf("parser panic: %v", r)
			}
		}()
		if err := produce(yield); err != nil {
			s.err = err
		}
	}
	s.next, s.stop = iter.Pull(iter.Seq[lead.ParsedLead](seq))
	return s
}

// Failed returns an empty stream whose Err is err.
func Failed(err error) *Stream {
	return NewStream(func(Yield) error { return err })
}

// Next advances to the next item.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	item, ok := s.next()
	if !ok {
		s.done = true
		return false
	}
	s.item = item
	return true
}

// Item returns the current item.
func (s *Stream) Item() lead.ParsedLead {
	return s.item
}

// Err returns the error that ended the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the producer. It is safe to call more than once.
func (s *Stream) Close() {
	s.done = true
	s.stop()
}

// Collect drains the stream into a slice and closes it.
func Collect(s *Stream) ([]lead.ParsedLead, error) {
	defer s.Close()
	var out []lead.ParsedLead
	for s.Next() {
		out = append(out, s.Item())
	}
	return out, s.Err()
}
