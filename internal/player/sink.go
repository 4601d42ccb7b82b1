// ABOUTME: Downstream adapter turning decoded blocks into writes on a consumer
// ABOUTME: Bridges the element's pad view onto outputs, files and encoders
package player

import (
	"log"

	"github.com/sidstream/sidstream-go/pkg/pipeline"
)

// Sink is a pipeline.Downstream that hands block data to a write
// function. It is the host-side glue the decoder element pushes into.
type Sink struct {
	caps  []pipeline.Caps
	write func([]byte) error

	// Optional event hooks.
	OnTags func(pipeline.TagsEvent)
	OnEOS  func()

	ended bool
}

// NewSink creates a sink offering caps, in order of preference, and
// writing every pushed block through write.
func NewSink(caps []pipeline.Caps, write func([]byte) error) *Sink {
	return &Sink{caps: caps, write: write}
}

func (s *Sink) OfferedCaps() []pipeline.Caps {
	return s.caps
}

func (s *Sink) Allocate(size int) ([]byte, pipeline.FlowReturn) {
	if s.ended {
		return nil, pipeline.FlowEOS
	}
	return make([]byte, size), pipeline.FlowOK
}

func (s *Sink) Push(buf pipeline.Buffer) pipeline.FlowReturn {
	if s.ended {
		return pipeline.FlowEOS
	}
	if err := s.write(buf.Data); err != nil {
		log.Printf("player: block write failed: %v", err)
		return pipeline.FlowError
	}
	return pipeline.FlowOK
}

func (s *Sink) PushEvent(ev pipeline.Event) {
	switch ev := ev.(type) {
	case pipeline.TagsEvent:
		if s.OnTags != nil {
			s.OnTags(ev)
		}
	case pipeline.SegmentEvent:
		log.Printf("player: segment start=%d stop=%d rate=%g", ev.Start, ev.Stop, ev.Rate)
	case pipeline.EOSEvent:
		s.ended = true
		if s.OnEOS != nil {
			s.OnEOS()
		}
	}
}

// Ended reports whether EOS has been seen.
func (s *Sink) Ended() bool {
	return s.ended
}
