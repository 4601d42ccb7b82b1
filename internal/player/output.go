// ABOUTME: Local audio output using the oto library
// ABOUTME: Plays S16 native-endian blocks with software volume control
package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Output plays 16-bit PCM byte blocks on the default audio device.
type Output struct {
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	volume     int
	muted      bool
	ready      bool
}

// NewOutput creates an unopened output at full volume.
func NewOutput() *Output {
	return &Output{volume: 100}
}

// Open initializes the device for the given format. oto allows one
// context per process; a second Open with a different format keeps the
// first context and logs a warning.
func (o *Output) Open(sampleRate, channels int) error {
	if o.otoCtx != nil {
		if o.sampleRate != sampleRate || o.channels != channels {
			log.Printf("player: format change %dHz %dch -> %dHz %dch ignored, oto context is fixed",
				o.sampleRate, o.channels, sampleRate, channels)
		}
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels

	// persistent player fed through a pipe so writes stream instead
	// of spawning a player per block
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()
	o.ready = true

	log.Printf("player: audio output initialized: %dHz, %d channels", sampleRate, channels)
	return nil
}

// Write plays one block of S16LE bytes, blocking until consumed.
func (o *Output) Write(block []byte) error {
	if !o.ready {
		return fmt.Errorf("output not initialized")
	}

	out := block
	if o.muted || o.volume != 100 {
		out = scaleBlock(block, getVolumeMultiplier(o.volume, o.muted))
	}

	if _, err := o.pipeWriter.Write(out); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Drain closes the write side and waits for the device to play out
// whatever it buffered.
func (o *Output) Drain() {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	for o.player != nil && o.player.BufferedSize() > 0 {
		time.Sleep(10 * time.Millisecond)
	}
}

// Close releases output resources.
func (o *Output) Close() error {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.ready = false
	}
	return nil
}

// SetVolume sets the volume (0-100).
func (o *Output) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume = volume
}

// SetMuted sets mute state.
func (o *Output) SetMuted(muted bool) {
	o.muted = muted
}

// scaleBlock applies a volume multiplier to S16LE bytes with clipping
// protection.
func scaleBlock(block []byte, multiplier float64) []byte {
	out := make([]byte, len(block)&^1)
	for i := 0; i+1 < len(block); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(block[i:]))
		scaled := int32(float64(sample) * multiplier)
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(scaled)))
	}
	return out
}

// getVolumeMultiplier calculates the volume multiplier.
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
