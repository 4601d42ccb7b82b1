// ABOUTME: Wire messages for the sidstream network streamer
// ABOUTME: JSON control messages plus binary PCM/opus chunk framing
package protocol

import (
	"encoding/binary"
	"fmt"
)

// ProtocolVersion is bumped on incompatible wire changes.
const ProtocolVersion = 1

// AudioChunkMessageType is the first byte of every binary audio frame.
const AudioChunkMessageType = 1

// Message is the top-level wrapper for all JSON control messages.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// AudioFormat describes one stream format a peer can produce or accept.
type AudioFormat struct {
	Codec      string `json:"codec"` // "pcm" or "opus"
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth"`
}

// ClientHello initiates the handshake. SupportedFormats is ordered by
// preference; the server picks the first one it can serve.
type ClientHello struct {
	ClientID         string        `json:"client_id"`
	Name             string        `json:"name"`
	Version          int           `json:"version"`
	SupportedFormats []AudioFormat `json:"supported_formats"`
}

// ServerHello answers a client hello.
type ServerHello struct {
	ServerID        string `json:"server_id"`
	Name            string `json:"name"`
	Version         int    `json:"version"`
	Product         string `json:"product,omitempty"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	SoftwareVersion string `json:"software_version,omitempty"`
}

// TuneMetadata carries the SID header credits for the streamed tune.
type TuneMetadata struct {
	Title     string `json:"title,omitempty"`
	Artist    string `json:"artist,omitempty"`
	Copyright string `json:"copyright,omitempty"`
	Songs     int    `json:"songs,omitempty"`
	Song      int    `json:"song,omitempty"`
}

// StreamStart announces the negotiated format ahead of the first
// audio chunk.
type StreamStart struct {
	Format AudioFormat   `json:"format"`
	Tune   *TuneMetadata `json:"tune,omitempty"`
}

// StreamEnd closes the stream. SID tunes play once; there is no
// follow-up stream on the same session.
type StreamEnd struct {
	Reason string `json:"reason,omitempty"` // "end-of-tune" or "error"
}

// ClientGoodbye is sent before a graceful disconnect.
type ClientGoodbye struct {
	Reason string `json:"reason,omitempty"`
}

// EncodeAudioChunk frames one audio payload with its stream timestamp
// in nanoseconds: [type:1][timestamp:8][payload:N].
func EncodeAudioChunk(timestamp int64, payload []byte) []byte {
	chunk := make([]byte, 1+8+len(payload))
	chunk[0] = AudioChunkMessageType
	binary.BigEndian.PutUint64(chunk[1:9], uint64(timestamp))
	copy(chunk[9:], payload)
	return chunk
}

// DecodeAudioChunk reverses EncodeAudioChunk. The returned payload
// aliases data.
func DecodeAudioChunk(data []byte) (timestamp int64, payload []byte, err error) {
	if len(data) < 9 {
		return 0, nil, fmt.Errorf("audio chunk truncated: %d bytes", len(data))
	}
	if data[0] != AudioChunkMessageType {
		return 0, nil, fmt.Errorf("unexpected binary message type %d", data[0])
	}
	return int64(binary.BigEndian.Uint64(data[1:9])), data[9:], nil
}
