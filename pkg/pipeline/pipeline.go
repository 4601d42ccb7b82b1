// ABOUTME: Minimal pad-flow vocabulary between a decoder element and its host
// ABOUTME: Defines flow results, output buffers, format candidates and the downstream sink
package pipeline

// FlowReturn is the result of pushing data toward, or requesting
// resources from, the downstream side of the pipeline.
type FlowReturn int

const (
	// FlowOK means the operation succeeded and flow continues.
	FlowOK FlowReturn = iota

	// FlowNotLinked means there is no downstream peer to receive data.
	FlowNotLinked

	// FlowFlushing means downstream is shutting down or flushing;
	// production should stop quietly.
	FlowFlushing

	// FlowEOS means downstream will accept no further data. This is a
	// normal end-of-flow signal, not a fault.
	FlowEOS

	// FlowError means downstream failed. This is a fault.
	FlowError
)

func (f FlowReturn) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowNotLinked:
		return "not-linked"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	case FlowError:
		return "error"
	}
	return "unknown"
}

// ExpectedEnd reports whether f ends the flow without being a fault.
// EOS and not-linked terminate a stream in the normal course of
// pipeline life; anything else that stops flow is abnormal.
func (f FlowReturn) ExpectedEnd() bool {
	return f == FlowEOS || f == FlowNotLinked
}

// Caps describes one acceptable output format: 16-bit signed
// native-endian PCM at the given rate and channel count.
type Caps struct {
	Rate     int
	Channels int
}

// Buffer is one block of produced audio plus its position metadata.
// Offset and OffsetEnd are frame indices; Timestamp and Duration are
// nanoseconds.
type Buffer struct {
	Data      []byte
	Offset    int64
	OffsetEnd int64
	Timestamp int64
	Duration  int64
}

// Downstream is the element's entire view of its host pipeline: an
// ordered set of acceptable formats, a buffer allocator, and a sink
// for buffers and out-of-band events.
type Downstream interface {
	// OfferedCaps returns the formats downstream accepts, in order of
	// preference. An empty slice means negotiation cannot proceed.
	OfferedCaps() []Caps

	// Allocate obtains an output buffer of size bytes.
	Allocate(size int) ([]byte, FlowReturn)

	// Push hands a completed buffer downstream.
	Push(buf Buffer) FlowReturn

	// PushEvent delivers an out-of-band event downstream.
	PushEvent(ev Event)
}
