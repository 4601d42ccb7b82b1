// ABOUTME: Tests for the decoder element lifecycle
// ABOUTME: Covers ingest, session start failures, production and flow classification
package siddec

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/sidstream/sidstream-go/pkg/pipeline"
)

// fakeTune is a parsed-tune stand-in.
type fakeTune struct {
	info     TuneInfo
	selected int
}

func (t *fakeTune) Info() TuneInfo       { return t.info }
func (t *fakeTune) SelectSong(index int) { t.selected = index }

// fakeEngine produces a deterministic ramp of totalSamples int16
// samples, then runs dry.
type fakeEngine struct {
	cfg       Config
	loaded    Tune
	cfgErr    error
	loadErr   error
	diag      string
	ffPercent int
	stopped   bool

	totalSamples int
	produced     int
	playCalls    int
}

func (e *fakeEngine) Configure(cfg Config) error {
	e.cfg = cfg
	return e.cfgErr
}

func (e *fakeEngine) Load(t Tune) error {
	e.loaded = t
	return e.loadErr
}

func (e *fakeEngine) Play(out []int16) int {
	e.playCalls++
	n := len(out)
	if remain := e.totalSamples - e.produced; n > remain {
		n = remain
	}
	for i := 0; i < n; i++ {
		out[i] = int16(e.produced + i)
	}
	e.produced += n
	return n
}

func (e *fakeEngine) FastForward(percent int) error {
	e.ffPercent = percent
	return nil
}

func (e *fakeEngine) Stop()              { e.stopped = true }
func (e *fakeEngine) Diagnostic() string { return e.diag }

// fakeBackend rejects empty input like a real tune parser would.
type fakeBackend struct {
	engine    *fakeEngine
	tune      *fakeTune
	newEngErr error
}

func (b *fakeBackend) ParseTune(data []byte) (Tune, error) {
	if len(data) == 0 {
		return nil, errors.New("SIDTUNE ERROR: no data")
	}
	return b.tune, nil
}

func (b *fakeBackend) NewEngine() (Engine, error) {
	if b.newEngErr != nil {
		return nil, b.newEngErr
	}
	return b.engine, nil
}

// fakeDownstream records everything pushed at it.
type fakeDownstream struct {
	caps     []pipeline.Caps
	buffers  []pipeline.Buffer
	events   []pipeline.Event
	allocRet pipeline.FlowReturn
	pushRet  pipeline.FlowReturn
}

func (d *fakeDownstream) OfferedCaps() []pipeline.Caps { return d.caps }

func (d *fakeDownstream) Allocate(size int) ([]byte, pipeline.FlowReturn) {
	if d.allocRet != pipeline.FlowOK {
		return nil, d.allocRet
	}
	return make([]byte, size), pipeline.FlowOK
}

func (d *fakeDownstream) Push(buf pipeline.Buffer) pipeline.FlowReturn {
	if d.pushRet != pipeline.FlowOK {
		return d.pushRet
	}
	d.buffers = append(d.buffers, buf)
	return pipeline.FlowOK
}

func (d *fakeDownstream) PushEvent(ev pipeline.Event) {
	d.events = append(d.events, ev)
}

func (d *fakeDownstream) sawEOS() bool {
	for _, ev := range d.events {
		if _, ok := ev.(pipeline.EOSEvent); ok {
			return true
		}
	}
	return false
}

func newTestRig(totalSamples int) (*fakeBackend, *fakeDownstream) {
	backend := &fakeBackend{
		engine: &fakeEngine{totalSamples: totalSamples},
		tune: &fakeTune{info: TuneInfo{
			Title:     "Ocean Loader 2",
			Artist:    "Martin Galway",
			Copyright: "1986 Ocean",
			Songs:     1,
		}},
	}
	down := &fakeDownstream{caps: []pipeline.Caps{{Rate: 48000, Channels: 2}}}
	return backend, down
}

func TestIngestOrderPreserving(t *testing.T) {
	input := make([]byte, 4096)
	for i := range input {
		input[i] = byte(i * 31)
	}

	for _, chunkSize := range []int{4096, 1000, 64, 7, 1} {
		t.Run(fmt.Sprintf("chunks of %d", chunkSize), func(t *testing.T) {
			backend, down := newTestRig(0)
			e, err := New(backend, down, DefaultProperties())
			if err != nil {
				t.Fatal(err)
			}

			for off := 0; off < len(input); off += chunkSize {
				end := off + chunkSize
				if end > len(input) {
					end = len(input)
				}
				if err := e.Ingest(input[off:end]); err != nil {
					t.Fatalf("ingest at %d: %v", off, err)
				}
			}

			if !bytes.Equal(e.raw, input) {
				t.Error("buffered bytes differ from input")
			}
			if e.State() != StateBuffering {
				t.Errorf("expected buffering state, got %s", e.State())
			}
		})
	}
}

func TestIngestOverflow(t *testing.T) {
	backend, down := newTestRig(0)
	e, err := New(backend, down, DefaultProperties())
	if err != nil {
		t.Fatal(err)
	}

	// fill to 10 bytes below the cap
	head := make([]byte, MaxTuneLen-10)
	for i := range head {
		head[i] = byte(i)
	}
	if err := e.Ingest(head); err != nil {
		t.Fatal(err)
	}

	// the crossing chunk must fail
	if err := e.Ingest(make([]byte, 20)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	// previously buffered bytes stay intact
	if e.Buffered() != MaxTuneLen-10 {
		t.Errorf("buffer length changed: %d", e.Buffered())
	}
	if !bytes.Equal(e.raw, head) {
		t.Error("buffered bytes corrupted by failed ingest")
	}
}

func TestIngestExactCapacity(t *testing.T) {
	backend, down := newTestRig(0)
	e, _ := New(backend, down, DefaultProperties())

	if err := e.Ingest(make([]byte, MaxTuneLen)); err != nil {
		t.Fatalf("exactly MaxTuneLen must fit: %v", err)
	}
	if err := e.Ingest([]byte{0}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestEndOfInputEmptyBuffer(t *testing.T) {
	backend, down := newTestRig(0)
	e, _ := New(backend, down, DefaultProperties())

	err := e.EndOfInput()
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
	if len(down.buffers) != 0 {
		t.Error("no buffers may be produced for empty input")
	}
	if e.State() != StatePaused {
		t.Errorf("expected paused state, got %s", e.State())
	}
}

func TestSessionStartFailures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(b *fakeBackend, d *fakeDownstream)
		expected error
	}{
		{
			"backend init",
			func(b *fakeBackend, d *fakeDownstream) { b.newEngErr = errors.New("no resid") },
			ErrBackendInit,
		},
		{
			"negotiation",
			func(b *fakeBackend, d *fakeDownstream) { d.caps = nil },
			ErrNegotiation,
		},
		{
			"config rejected",
			func(b *fakeBackend, d *fakeDownstream) { b.engine.cfgErr = errors.New("bad rate") },
			ErrConfigRejected,
		},
		{
			"load failure",
			func(b *fakeBackend, d *fakeDownstream) {
				b.engine.loadErr = errors.New("load")
				b.engine.diag = "memory conflict"
			},
			ErrLoadFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, down := newTestRig(100)
			tt.mutate(backend, down)

			e, _ := New(backend, down, DefaultProperties())
			if err := e.Ingest([]byte("PSID....")); err != nil {
				t.Fatal(err)
			}

			err := e.EndOfInput()
			if !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, err)
			}
			if e.State() != StatePaused {
				t.Errorf("expected paused state, got %s", e.State())
			}
			if len(down.buffers) != 0 {
				t.Error("failed session start must not produce buffers")
			}
		})
	}
}

func TestLoadFailureCarriesDiagnostic(t *testing.T) {
	backend, down := newTestRig(100)
	backend.engine.loadErr = errors.New("load")
	backend.engine.diag = "memory conflict"

	e, _ := New(backend, down, DefaultProperties())
	_ = e.Ingest([]byte("PSID...."))

	err := e.EndOfInput()
	if err == nil || !errors.Is(err, ErrLoadFailure) {
		t.Fatalf("expected ErrLoadFailure, got %v", err)
	}
	if want := "memory conflict"; !contains(err.Error(), want) {
		t.Errorf("error %q does not carry engine diagnostic %q", err, want)
	}
	if want := "size: 8"; !contains(err.Error(), want) {
		t.Errorf("error %q does not carry buffered size", err)
	}
}

func TestNegotiationTakesFirstCandidate(t *testing.T) {
	backend, down := newTestRig(100)
	down.caps = []pipeline.Caps{
		{Rate: 44100, Channels: 1},
		{Rate: 48000, Channels: 2},
	}

	e, _ := New(backend, down, DefaultProperties())
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}

	if backend.engine.cfg.SampleRate != 44100 || backend.engine.cfg.Channels != 1 {
		t.Errorf("expected first candidate 44100/1, got %d/%d",
			backend.engine.cfg.SampleRate, backend.engine.cfg.Channels)
	}
}

func TestSessionStartAppliesProperties(t *testing.T) {
	backend, down := newTestRig(100)

	props := DefaultProperties()
	props.TuneIndex = 3
	props.Clock = ClockNTSC
	props.Filter = false
	props.MOS8580 = true

	e, _ := New(backend, down, props)
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}

	cfg := backend.engine.cfg
	if cfg.Clock != ClockNTSC || cfg.Filter || !cfg.MOS8580 {
		t.Errorf("engine config does not reflect properties: %+v", cfg)
	}
	if backend.tune.selected != 3 {
		t.Errorf("expected song 3 selected, got %d", backend.tune.selected)
	}
	if backend.engine.ffPercent != 100 {
		t.Errorf("expected fast-forward 100, got %d", backend.engine.ffPercent)
	}
}

func TestSessionStartEmitsTagsAndSegment(t *testing.T) {
	backend, down := newTestRig(100)
	e, _ := New(backend, down, DefaultProperties())
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}

	if len(down.events) != 2 {
		t.Fatalf("expected 2 events before audio, got %d", len(down.events))
	}
	tags, ok := down.events[0].(pipeline.TagsEvent)
	if !ok {
		t.Fatalf("expected TagsEvent first, got %T", down.events[0])
	}
	if tags.Title != "Ocean Loader 2" || tags.Artist != "Martin Galway" {
		t.Errorf("unexpected tags: %+v", tags)
	}
	seg, ok := down.events[1].(pipeline.SegmentEvent)
	if !ok {
		t.Fatalf("expected SegmentEvent second, got %T", down.events[1])
	}
	if seg.Start != 0 || seg.Stop != -1 || seg.Rate != 1.0 {
		t.Errorf("expected open-ended segment from zero, got %+v", seg)
	}
}

func TestSessionStartSkipsTagsForUntitledTune(t *testing.T) {
	backend, down := newTestRig(100)
	backend.tune.info = TuneInfo{Songs: 1, StartSong: 1}
	e, _ := New(backend, down, DefaultProperties())
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}

	if len(down.events) != 1 {
		t.Fatalf("expected only the segment event, got %d events", len(down.events))
	}
	if _, ok := down.events[0].(pipeline.SegmentEvent); !ok {
		t.Fatalf("expected SegmentEvent, got %T", down.events[0])
	}
}

func TestEndToEndProduction(t *testing.T) {
	// 2.5 blocks of audio at 1024-byte blocks: two full plays of 512
	// samples and one short play of 256
	const totalSamples = 1280

	backend, down := newTestRig(totalSamples)
	props := DefaultProperties()
	props.Blocksize = 1024

	e, _ := New(backend, down, props)
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}

	e.Run()

	if len(down.buffers) != 3 {
		t.Fatalf("expected 3 buffers, got %d", len(down.buffers))
	}

	var totalBytes int
	for _, buf := range down.buffers {
		totalBytes += len(buf.Data)
	}
	if totalBytes != totalSamples*2 {
		t.Errorf("expected %d output bytes, got %d", totalSamples*2, totalBytes)
	}
	if backend.engine.playCalls != 3 {
		t.Errorf("expected 3 play calls, got %d", backend.engine.playCalls)
	}
	if !down.sawEOS() {
		t.Error("expected EOS after the short block")
	}
	if e.State() != StatePaused {
		t.Errorf("expected terminal paused state, got %s", e.State())
	}

	// paused is terminal: further production does nothing
	if e.Produce() {
		t.Error("Produce must not resume after end of track")
	}
	if len(down.buffers) != 3 {
		t.Error("buffer produced after end of track")
	}
}

func TestProductionMetadataStamps(t *testing.T) {
	const totalSamples = 1280 // 48kHz stereo, 1024-byte blocks

	backend, down := newTestRig(totalSamples)
	props := DefaultProperties()
	props.Blocksize = 1024

	e, _ := New(backend, down, props)
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}
	e.Run()

	// stereo at 48kHz: 4 bytes per frame
	first := down.buffers[0]
	if first.Offset != 0 || first.Timestamp != 0 {
		t.Errorf("first buffer must start at zero, got offset=%d ts=%d",
			first.Offset, first.Timestamp)
	}
	if first.OffsetEnd != 256 {
		t.Errorf("expected offset end 256 frames, got %d", first.OffsetEnd)
	}

	second := down.buffers[1]
	if second.Offset != first.OffsetEnd {
		t.Errorf("buffers not contiguous: %d != %d", second.Offset, first.OffsetEnd)
	}
	if second.Timestamp != first.Timestamp+first.Duration {
		t.Errorf("timestamps not contiguous: %d != %d+%d",
			second.Timestamp, first.Timestamp, first.Duration)
	}

	wantTS, err := Convert(FormatBytes, 1024, FormatTime, 4, 48000)
	if err != nil {
		t.Fatal(err)
	}
	if second.Timestamp != wantTS {
		t.Errorf("expected timestamp %d, got %d", wantTS, second.Timestamp)
	}
}

func TestAllocationFailureExpectedEnd(t *testing.T) {
	backend, down := newTestRig(4096)
	down.allocRet = pipeline.FlowEOS

	var reported error
	e, _ := New(backend, down, DefaultProperties())
	e.OnError = func(err error) { reported = err }
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}
	e.Run()

	if reported != nil {
		t.Errorf("expected no decode error for flow eos, got %v", reported)
	}
	if !down.sawEOS() {
		t.Error("expected EOS downstream")
	}
	if e.State() != StatePaused {
		t.Errorf("expected paused, got %s", e.State())
	}
}

func TestPushFailureAbnormal(t *testing.T) {
	backend, down := newTestRig(4096)
	down.pushRet = pipeline.FlowError

	var reported error
	e, _ := New(backend, down, DefaultProperties())
	e.OnError = func(err error) { reported = err }
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}
	e.Run()

	if reported == nil {
		t.Error("expected a reported decode error for flow error")
	}
	if !down.sawEOS() {
		t.Error("expected EOS downstream even on abnormal failure")
	}
}

func TestFlushingStopsQuietly(t *testing.T) {
	backend, down := newTestRig(4096)
	down.allocRet = pipeline.FlowFlushing

	var reported error
	e, _ := New(backend, down, DefaultProperties())
	e.OnError = func(err error) { reported = err }
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}
	e.Run()

	if reported != nil {
		t.Errorf("flushing must not raise an error, got %v", reported)
	}
	if down.sawEOS() {
		t.Error("flushing must not push EOS")
	}
}

func TestPositionQuery(t *testing.T) {
	backend, down := newTestRig(1280)
	props := DefaultProperties()
	props.Blocksize = 1024

	e, _ := New(backend, down, props)
	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}

	if !e.Produce() {
		t.Fatal("first block should produce")
	}

	pos, err := e.Position(FormatBytes)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 1024 {
		t.Errorf("expected position 1024 bytes, got %d", pos)
	}

	samples, err := e.Position(FormatSamples)
	if err != nil {
		t.Fatal(err)
	}
	if samples != 256 {
		t.Errorf("expected position 256 frames, got %d", samples)
	}
}

func TestMetadataAvailability(t *testing.T) {
	backend, down := newTestRig(100)
	e, _ := New(backend, down, DefaultProperties())

	if e.Metadata() != nil {
		t.Error("metadata must be nil before session start")
	}

	_ = e.Ingest([]byte("PSID...."))
	if err := e.EndOfInput(); err != nil {
		t.Fatal(err)
	}

	md := e.Metadata()
	if md == nil || md.Title != "Ocean Loader 2" {
		t.Errorf("unexpected metadata after session start: %+v", md)
	}
}

func TestNewValidatesProperties(t *testing.T) {
	backend, down := newTestRig(0)

	tests := []struct {
		name   string
		mutate func(p *Properties)
	}{
		{"blocksize too small", func(p *Properties) { p.Blocksize = 512 }},
		{"blocksize too large", func(p *Properties) { p.Blocksize = 128 * 1024 }},
		{"negative tune", func(p *Properties) { p.TuneIndex = -1 }},
		{"tune too large", func(p *Properties) { p.TuneIndex = 101 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := DefaultProperties()
			tt.mutate(&props)
			if _, err := New(backend, down, props); err == nil {
				t.Error("expected property validation error")
			}
		})
	}
}

func contains(s, sub string) bool {
	return bytes.Contains([]byte(s), []byte(sub))
}
