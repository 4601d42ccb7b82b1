// ABOUTME: sidstream wire protocol package
// ABOUTME: Defines control messages and audio chunk framing

// Package protocol implements the sidstream wire protocol.
//
// Control flows as JSON messages over a WebSocket text channel; audio
// flows as framed binary chunks on the same connection.
package protocol
