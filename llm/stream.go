package llm

import (
	"io"
	"strings"
)

// Stream is a streamed completion. It is forward only and meant for a single
// consumer:
//
//	for s.Next() {
//	    fmt.Print(s.Fragment())
//	}
//	if err := s.Err(); err != nil {
//	    // the stream ended early
//	}
//
// Next returns false once the provider signals the end of the completion or
// fails; Err tells the two apart. Close releases the underlying request and
// may be called at any time, including before the stream is drained.
type Stream struct {
	recv    func() (string, error)
	closeFn func() error

	cur    string
	err    error
	done   bool
	closed bool
}

// NewStream builds a Stream from a receive function that returns the next
// fragment, or io.EOF once the completion is finished. closeFn may be nil.
func NewStream(recv func() (string, error), closeFn func() error) *Stream {
	return &Stream{recv: recv, closeFn: closeFn}
}

// Next advances to the next non-empty fragment.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		frag, err := s.recv()
		if err == io.EOF {
			s.done = true
			return false
		}
		if err != nil {
			s.err = err
			s.done = true
			return false
		}
		if frag == "" {
			continue
		}
		s.cur = frag
		return true
	}
}

// Fragment returns the fragment Next moved to.
func (s *Stream) Fragment() string {
	return s.cur
}

// Err returns the error that ended the stream, or nil after a clean end.
func (s *Stream) Err() error {
	return s.err
}

// Close stops the stream. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.done = true
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

// Collect drains s into one string and closes it.
func Collect(s *Stream) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Fragment())
	}
	if err := s.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

// FromFragments returns a Stream that yields frags and then ends with err,
// or cleanly when err is nil.
func FromFragments(frags []string, err error) *Stream {
	i := 0
	return NewStream(func() (string, error) {
		if i < len(frags) {
			i++
			return frags[i-1], nil
		}
		if err != nil {
			return "", err
		}
		return "", io.EOF
	}, nil)
}
