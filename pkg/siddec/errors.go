// ABOUTME: Error taxonomy for the SID decoder element
// ABOUTME: Sentinel errors for every fatal session-ending condition
package siddec

import "errors"

// Every error here is fatal for the session it occurs in. There are no
// retries and no partial results: a session either reaches Producing
// and runs to its end, or it never starts.
var (
	// ErrCapacityExceeded means an ingested chunk would push the
	// buffered input past MaxTuneLen.
	ErrCapacityExceeded = errors.New("siddec: input data bigger than allowed buffer size")

	// ErrMalformedInput means the backend rejected the buffered bytes
	// as a SID file.
	ErrMalformedInput = errors.New("siddec: could not load tune")

	// ErrBackendInit means the emulation backend could not be created.
	ErrBackendInit = errors.New("siddec: could not init emulation backend")

	// ErrNegotiation means downstream offered no output format.
	ErrNegotiation = errors.New("siddec: could not negotiate output format")

	// ErrConfigRejected means the engine refused the session config.
	ErrConfigRejected = errors.New("siddec: could not set engine config")

	// ErrLoadFailure means the engine refused the tune/song selection.
	ErrLoadFailure = errors.New("siddec: could not load tune into engine")

	// ErrUnsupportedConversion marks a (source, target) unit pair the
	// converter has no rule for. Seeing it is a programming error, not
	// a runtime condition.
	ErrUnsupportedConversion = errors.New("siddec: unsupported unit conversion")
)
