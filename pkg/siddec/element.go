// ABOUTME: The SID decoder element: buffers one file, then drives the emulation engine
// ABOUTME: Implements ingest, session start, and the block-producing generator
package siddec

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/sidstream/sidstream-go/pkg/pipeline"
)

const (
	// MaxTuneLen is the SID format's maximum file length. Ingesting
	// past it is fatal for the stream.
	MaxTuneLen = 65536

	// Blocksize bounds and default, in output bytes per block.
	MinBlocksize     = 1 * 1024
	DefaultBlocksize = 8 * 1024
	MaxBlocksize     = 64 * 1024

	// MaxTuneIndex bounds the selectable sub-tune property.
	MaxTuneIndex = 100

	// fastForwardPercent is applied once at session start to run the
	// tune past a silent lead-in.
	fastForwardPercent = 100
)

// State is the element's lifecycle position. Transitions only move
// forward; one element instance decodes exactly one input stream.
type State int

const (
	StateIdle State = iota
	StateBuffering
	StateActive
	StateProducing
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuffering:
		return "buffering"
	case StateActive:
		return "active"
	case StateProducing:
		return "producing"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// Properties is the element's configuration surface. It is read once,
// at session start, and folded into the immutable engine Config; there
// is no way to change a running session.
type Properties struct {
	// TuneIndex selects the sub-tune, 0 meaning the file's default.
	TuneIndex int

	// Clock is the video clock standard to emulate.
	Clock ClockSpec

	// Filter enables the SID filter emulation.
	Filter bool

	// MeasuredVolume uses measured rather than ideal chip volume.
	MeasuredVolume bool

	// MOS8580 overrides the chip model to the later 8580 revision.
	MOS8580 bool

	// ForceSpeed forces the tune's declared speed over the clock's.
	ForceSpeed bool

	// Blocksize is the output bytes requested per produced block.
	Blocksize int
}

// DefaultProperties returns the element defaults: first tune, PAL,
// filter and measured volume on, 6581 chip, 8KiB blocks.
func DefaultProperties() Properties {
	return Properties{
		Clock:          ClockPAL,
		Filter:         true,
		MeasuredVolume: true,
		Blocksize:      DefaultBlocksize,
	}
}

// Element decodes one SID file to PCM blocks. Feed it with Ingest,
// finish input with EndOfInput, then drive Produce (or Run) until it
// stops. The element is not safe for concurrent use: ingestion must
// complete before production starts, which is the natural order since
// end-of-input is the only production trigger.
type Element struct {
	backend Backend
	down    pipeline.Downstream
	props   Properties

	// OnError receives user-visible decode errors raised while
	// producing. Session-start failures are returned, not reported
	// here. Optional.
	OnError func(error)

	state State
	raw   []byte

	tune    Tune
	engine  Engine
	info    TuneInfo
	cfg     Config
	scratch []int16

	totalBytes uint64
}

// New creates an element bound to its backend and downstream peer.
// Start from DefaultProperties when customizing props; a zero
// Blocksize selects the default.
func New(backend Backend, down pipeline.Downstream, props Properties) (*Element, error) {
	if props.Blocksize == 0 {
		props.Blocksize = DefaultBlocksize
	}
	if props.Blocksize < MinBlocksize || props.Blocksize > MaxBlocksize {
		return nil, fmt.Errorf("siddec: blocksize %d out of range [%d, %d]",
			props.Blocksize, MinBlocksize, MaxBlocksize)
	}
	if props.TuneIndex < 0 || props.TuneIndex > MaxTuneIndex {
		return nil, fmt.Errorf("siddec: tune index %d out of range [0, %d]",
			props.TuneIndex, MaxTuneIndex)
	}

	return &Element{
		backend: backend,
		down:    down,
		props:   props,
		state:   StateIdle,
		raw:     make([]byte, 0, MaxTuneLen),
	}, nil
}

// State returns the element's lifecycle state.
func (e *Element) State() State {
	return e.state
}

// Properties returns the configuration the element was created with.
func (e *Element) Properties() Properties {
	return e.props
}

// Metadata returns the loaded tune's header info, or nil before a
// session has started.
func (e *Element) Metadata() *TuneInfo {
	if e.tune == nil {
		return nil
	}
	info := e.info
	return &info
}

// Ingest appends one input chunk to the raw tune buffer. A chunk that
// would push the total past MaxTuneLen fails with ErrCapacityExceeded
// and leaves the previously buffered bytes intact.
func (e *Element) Ingest(chunk []byte) error {
	if len(e.raw)+len(chunk) > MaxTuneLen {
		e.state = StatePaused
		return fmt.Errorf("%w: %d + %d > %d bytes",
			ErrCapacityExceeded, len(e.raw), len(chunk), MaxTuneLen)
	}
	e.raw = append(e.raw, chunk...)
	if e.state == StateIdle {
		e.state = StateBuffering
	}
	return nil
}

// Buffered returns the number of input bytes collected so far.
func (e *Element) Buffered() int {
	return len(e.raw)
}

// EndOfInput marks the input complete and starts the playback session:
// parse, backend init, format negotiation, engine configuration, tune
// load, tag and segment emission, then the fast-forward past any
// silent lead-in. On success the element is in StateProducing; any
// failure is terminal.
func (e *Element) EndOfInput() error {
	tune, err := e.backend.ParseTune(e.raw)
	if err != nil {
		return e.abort(fmt.Errorf("%w: %v (size: %d)", ErrMalformedInput, err, len(e.raw)))
	}

	engine, err := e.backend.NewEngine()
	if err != nil {
		return e.abort(fmt.Errorf("%w: %v", ErrBackendInit, err))
	}

	caps, err := e.negotiate()
	if err != nil {
		return e.abort(err)
	}

	cfg := Config{
		SampleRate:     caps.Rate,
		Channels:       caps.Channels,
		Clock:          e.props.Clock,
		Filter:         e.props.Filter,
		MeasuredVolume: e.props.MeasuredVolume,
		MOS8580:        e.props.MOS8580,
		ForceSpeed:     e.props.ForceSpeed,
	}
	if err := engine.Configure(cfg); err != nil {
		return e.abort(fmt.Errorf("%w: %v", ErrConfigRejected, err))
	}

	tune.SelectSong(e.props.TuneIndex)
	if err := engine.Load(tune); err != nil {
		return e.abort(fmt.Errorf("%w: %s (size: %d)",
			ErrLoadFailure, engine.Diagnostic(), len(e.raw)))
	}

	e.tune = tune
	e.engine = engine
	e.cfg = cfg
	e.info = tune.Info()
	e.scratch = make([]int16, e.props.Blocksize/2)
	e.state = StateActive

	e.pushTags()
	e.down.PushEvent(pipeline.SegmentEvent{Start: 0, Stop: -1, Rate: 1.0})
	e.totalBytes = 0

	if err := e.engine.FastForward(fastForwardPercent); err != nil {
		log.Printf("siddec: fast-forward failed: %v", err)
	}

	log.Printf("siddec: session started: %q, song %d/%d, %dHz %dch",
		e.info.Title, e.props.TuneIndex, e.info.Songs, cfg.SampleRate, cfg.Channels)

	e.state = StateProducing
	return nil
}

// negotiate fixes the output format on the first caps downstream
// offers. There is no preference scoring.
func (e *Element) negotiate() (pipeline.Caps, error) {
	offered := e.down.OfferedCaps()
	if len(offered) == 0 {
		return pipeline.Caps{}, ErrNegotiation
	}
	return offered[0], nil
}

// pushTags emits the tune's header strings. A header with no text at
// all produces no tags event; within the event, empty fields mean the
// header had no value for them.
func (e *Element) pushTags() {
	if e.info.Title == "" && e.info.Artist == "" && e.info.Copyright == "" {
		return
	}
	e.down.PushEvent(pipeline.TagsEvent{
		Title:     e.info.Title,
		Artist:    e.info.Artist,
		Copyright: e.info.Copyright,
	})
}

// abort terminally fails a session before it produced anything.
func (e *Element) abort(err error) error {
	e.state = StatePaused
	return err
}

// bytesPerSample is the size of one frame: 2 bytes per channel.
func (e *Element) bytesPerSample() int {
	return 2 * e.cfg.Channels
}

func (e *Element) convert(from Format, value int64, to Format) (int64, error) {
	return Convert(from, value, to, e.bytesPerSample(), e.cfg.SampleRate)
}

// Produce synthesizes, stamps and pushes one block. It returns true
// while the element remains producible; after it returns false the
// element is paused for good, either on the designed end-of-track
// short block or on a flow failure.
func (e *Element) Produce() bool {
	if e.state != StateProducing {
		return false
	}

	out, ret := e.down.Allocate(e.props.Blocksize)
	if ret != pipeline.FlowOK {
		e.pause(ret)
		return false
	}

	played := 2 * e.engine.Play(e.scratch[:e.props.Blocksize/2])
	for i := 0; i < played/2; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(e.scratch[i]))
	}

	buf := pipeline.Buffer{Data: out[:played]}

	// stamp the block from the pre-production position, then the end
	// metadata from the post-production position
	buf.Offset, _ = e.convert(FormatBytes, int64(e.totalBytes), FormatSamples)
	buf.Timestamp, _ = e.convert(FormatBytes, int64(e.totalBytes), FormatTime)

	e.totalBytes += uint64(played)

	buf.OffsetEnd, _ = e.convert(FormatBytes, int64(e.totalBytes), FormatSamples)
	end, _ := e.convert(FormatBytes, int64(e.totalBytes), FormatTime)
	buf.Duration = end - buf.Timestamp

	if ret := e.down.Push(buf); ret != pipeline.FlowOK {
		e.pause(ret)
		return false
	}

	if played < e.props.Blocksize {
		// the engine ran out of track
		e.down.PushEvent(pipeline.EOSEvent{})
		log.Printf("siddec: end of tune after %d bytes", e.totalBytes)
		e.state = StatePaused
		return false
	}

	return true
}

// Run drives Produce until the session ends. It is the host's
// scheduling loop collapsed into a call.
func (e *Element) Run() {
	for e.Produce() {
	}
}

// pause stops production on a flow failure. Expected end-of-flow
// results push EOS quietly; flushing stops without any event; anything
// else raises a decode error before the EOS.
func (e *Element) pause(ret pipeline.FlowReturn) {
	switch {
	case ret.ExpectedEnd():
		e.down.PushEvent(pipeline.EOSEvent{})
	case ret == pipeline.FlowFlushing:
		// downstream is tearing down, nothing to report
	default:
		e.reportError(fmt.Errorf("siddec: streaming stopped, reason %s", ret))
		e.down.PushEvent(pipeline.EOSEvent{})
	}
	log.Printf("siddec: pausing production, reason: %s", ret)
	e.state = StatePaused
}

func (e *Element) reportError(err error) {
	if e.OnError != nil {
		e.OnError(err)
		return
	}
	log.Printf("siddec: %v", err)
}

// Position answers the position query: the current production position
// converted to the requested unit.
func (e *Element) Position(to Format) (int64, error) {
	return e.convert(FormatBytes, int64(e.totalBytes), to)
}

// Close stops the engine and releases the session. The element cannot
// be reused afterwards.
func (e *Element) Close() {
	if e.engine != nil {
		e.engine.Stop()
	}
	e.state = StatePaused
}
