// ABOUTME: Opus audio encoder for bandwidth-efficient streaming
// ABOUTME: Wraps libopus and reframes decoder blocks into fixed opus frames
package server

import (
	"fmt"
	"log"

	"gopkg.in/hraban/opus.v2"
)

// OpusEncoder wraps the opus encoder plus the sample accumulator that
// reframes arbitrarily sized decoder blocks into fixed opus frames.
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
	frameSize  int // samples per channel per frame
	pending    []int16
}

// NewOpusEncoder creates a new opus encoder. frameSize is in samples
// per channel (e.g. 960 for 20ms at 48kHz).
func NewOpusEncoder(sampleRate, channels, frameSize int) (*OpusEncoder, error) {
	encoder, err := opus.NewEncoder(sampleRate, channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	// 128 kbps for stereo, 64 kbps for mono
	bitrate := 64000 * channels
	if err := encoder.SetBitrate(bitrate); err != nil {
		log.Printf("server: failed to set opus bitrate: %v", err)
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: sampleRate,
		channels:   channels,
		frameSize:  frameSize,
	}, nil
}

// Encode appends pcm to the accumulator and encodes every complete
// frame it now holds. Input is interleaved int16 samples.
func (e *OpusEncoder) Encode(pcm []int16) ([][]byte, error) {
	e.pending = append(e.pending, pcm...)

	frameSamples := e.frameSize * e.channels
	var packets [][]byte

	for len(e.pending) >= frameSamples {
		frame := e.pending[:frameSamples]
		e.pending = e.pending[frameSamples:]

		// opus packets never exceed 4000 bytes
		output := make([]byte, 4000)
		n, err := e.encoder.Encode(frame, output)
		if err != nil {
			return nil, fmt.Errorf("opus encode failed: %w", err)
		}
		packets = append(packets, output[:n])
	}

	return packets, nil
}

// Flush pads and encodes any buffered partial frame.
func (e *OpusEncoder) Flush() ([]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}

	frameSamples := e.frameSize * e.channels
	frame := make([]int16, frameSamples)
	copy(frame, e.pending)
	e.pending = e.pending[:0]

	output := make([]byte, 4000)
	n, err := e.encoder.Encode(frame, output)
	if err != nil {
		return nil, fmt.Errorf("opus flush failed: %w", err)
	}
	return output[:n], nil
}
