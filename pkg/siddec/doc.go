// ABOUTME: Package documentation for siddec
// ABOUTME: Explains the one-file, one-session element model

// Package siddec decodes Commodore 64 SID tunes to raw 16-bit PCM.
//
// A SID file is a small C64 program; decoding means running it on an
// emulated 6502 CPU and SID sound chip. The element buffers the whole
// file first, then drives an emulation backend to synthesize audio
// blocks on demand and pushes them to a downstream sink with byte,
// sample and time metadata.
//
// One element instance decodes exactly one input stream. Seeking is
// not, and cannot be, implemented.
package siddec
