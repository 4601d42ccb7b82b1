// ABOUTME: Unit conversion between byte positions, sample indices and stream time
// ABOUTME: Overflow-safe scaling for long-duration high-rate streams
package siddec

import (
	"fmt"
	"math"
	"math/bits"
	"time"
)

// Format is a position/length unit on the output stream.
type Format int

const (
	// FormatBytes counts produced output bytes.
	FormatBytes Format = iota

	// FormatSamples counts sample frames (one frame covers all
	// channels).
	FormatSamples

	// FormatTime is stream time in nanoseconds.
	FormatTime
)

func (f Format) String() string {
	switch f {
	case FormatBytes:
		return "bytes"
	case FormatSamples:
		return "samples"
	case FormatTime:
		return "time"
	}
	return "unknown"
}

const nsPerSecond = int64(time.Second)

// scale computes value*num/denom through a 128-bit intermediate, so
// byte positions hours into a 48kHz stream convert to nanoseconds
// without overflowing int64. A quotient that does not fit in int64 is
// an error; bits.Div64 would panic on it.
func scale(value, num, denom int64) (int64, error) {
	hi, lo := bits.Mul64(uint64(value), uint64(num))
	if hi >= uint64(denom) {
		return 0, fmt.Errorf("%w: %d * %d / %d exceeds the representable range",
			ErrUnsupportedConversion, value, num, denom)
	}
	q, _ := bits.Div64(hi, lo, uint64(denom))
	if q > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d * %d / %d exceeds the representable range",
			ErrUnsupportedConversion, value, num, denom)
	}
	return int64(q), nil
}

// Convert translates a non-negative position or length between units,
// given the session's bytes-per-frame and sample rate. Converting a
// value to its own unit returns it unchanged.
func Convert(from Format, value int64, to Format, bytesPerSample, rate int) (int64, error) {
	if from == to {
		return value, nil
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: negative value %d", ErrUnsupportedConversion, value)
	}

	switch from {
	case FormatBytes:
		switch to {
		case FormatSamples:
			if bytesPerSample == 0 {
				return 0, fmt.Errorf("%w: zero bytes per sample", ErrUnsupportedConversion)
			}
			return value / int64(bytesPerSample), nil
		case FormatTime:
			byterate := int64(bytesPerSample) * int64(rate)
			if byterate == 0 {
				return 0, fmt.Errorf("%w: zero byte rate", ErrUnsupportedConversion)
			}
			return scale(value, nsPerSecond, byterate)
		}
	case FormatSamples:
		switch to {
		case FormatBytes:
			return value * int64(bytesPerSample), nil
		case FormatTime:
			if rate == 0 {
				return 0, fmt.Errorf("%w: zero sample rate", ErrUnsupportedConversion)
			}
			return scale(value, nsPerSecond, int64(rate))
		}
	case FormatTime:
		switch to {
		case FormatBytes:
			return scale(value, int64(bytesPerSample)*int64(rate), nsPerSecond)
		case FormatSamples:
			return scale(value, int64(rate), nsPerSecond)
		}
	}
	return 0, fmt.Errorf("%w: %s to %s", ErrUnsupportedConversion, from, to)
}
