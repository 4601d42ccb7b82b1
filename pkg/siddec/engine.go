// ABOUTME: Interfaces to the external SID emulation backend
// ABOUTME: Defines the tune handle, engine handle and session configuration
package siddec

// ClockSpec selects the video clock standard the emulated machine runs
// at. SID tunes are timed against the C64's video refresh, so the
// clock changes playback speed for tunes authored on the other system.
type ClockSpec int

const (
	ClockPAL ClockSpec = iota
	ClockNTSC
	ClockAny
)

func (c ClockSpec) String() string {
	switch c {
	case ClockPAL:
		return "pal"
	case ClockNTSC:
		return "ntsc"
	case ClockAny:
		return "any"
	}
	return "unknown"
}

// TuneInfo is the descriptive metadata carried in a SID file header.
// The format stores up to three free-text credit strings.
type TuneInfo struct {
	Title     string
	Artist    string
	Copyright string

	// Songs is the number of selectable sub-tunes, StartSong the
	// file's default selection (1-based in the file, 0 means unset).
	Songs     int
	StartSong int
}

// Tune is a parsed SID file held by the backend.
type Tune interface {
	// Info returns the tune's header metadata.
	Info() TuneInfo

	// SelectSong picks the sub-tune to play. Index 0 selects the
	// file's default song; out-of-range values are clamped by the
	// backend.
	SelectSong(index int)
}

// Config is the complete engine configuration for one session. It is
// assembled once from the element's properties and the negotiated
// output format, then applied wholesale; it never changes mid-session.
type Config struct {
	SampleRate int
	Channels   int

	Clock          ClockSpec
	Filter         bool
	MeasuredVolume bool
	MOS8580        bool
	ForceSpeed     bool
}

// Engine is one emulation instance. All calls are synchronous; Play is
// bounded by the size of the buffer handed to it.
type Engine interface {
	// Configure applies cfg. Called exactly once, before Load.
	Configure(cfg Config) error

	// Load attaches a tune with its selected song to the engine.
	Load(t Tune) error

	// Play synthesizes up to len(out) samples of 16-bit PCM into out
	// and returns the number of samples written. A short count means
	// the track has ended.
	Play(out []int16) int

	// FastForward advances emulation at the given percentage of
	// normal speed without changing what Play produces. Used to run
	// the tune's init routine past a silent lead-in.
	FastForward(percent int) error

	// Stop halts emulation and detaches any loaded tune.
	Stop()

	// Diagnostic returns the engine's last error text, for inclusion
	// in user-visible failure messages.
	Diagnostic() string
}

// Backend creates the per-session tune and engine handles. The real
// implementation wraps libsidplayfp; tests substitute a fake.
type Backend interface {
	// ParseTune parses a complete SID file image.
	ParseTune(data []byte) (Tune, error)

	// NewEngine creates a fresh emulation instance.
	NewEngine() (Engine, error)
}
