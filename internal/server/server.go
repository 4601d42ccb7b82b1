// ABOUTME: WebSocket streaming server for decoded SID audio
// ABOUTME: Decodes one tune through the element, then serves it to listeners
package server

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sidstream/sidstream-go/internal/discovery"
	"github.com/sidstream/sidstream-go/internal/version"
	"github.com/sidstream/sidstream-go/pkg/pipeline"
	"github.com/sidstream/sidstream-go/pkg/protocol"
	"github.com/sidstream/sidstream-go/pkg/siddec"
)

const (
	// Default output format offered to the decoder element.
	DefaultSampleRate = 48000
	DefaultChannels   = 2

	// OpusFrameSize is samples per channel per opus frame: 20ms at
	// 48kHz.
	OpusFrameSize = 960

	// burstBlocks are sent unpaced at stream start so listeners can
	// prime their jitter buffers.
	burstBlocks = 4
)

// Config holds server configuration.
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Debug      bool
}

// TimedBlock is one decoded output block with its stream timestamps.
type TimedBlock struct {
	Timestamp int64 // ns
	Duration  int64 // ns
	Data      []byte
}

// Server decodes one SID tune up front and streams it to every
// listener that connects, each from the beginning.
type Server struct {
	config   Config
	serverID string

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*Client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager

	format pipeline.Caps
	meta   protocol.TuneMetadata
	blocks []TimedBlock

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Client represents a connected listener.
type Client struct {
	ID    string
	Name  string
	Conn  *websocket.Conn
	Codec string // "pcm" or "opus"

	sendChan chan interface{}
	done     chan struct{}
}

// New creates a server instance. Call LoadTune before Start.
func New(config Config) *Server {
	return &Server{
		config:   config,
		serverID: uuid.New().String(),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// local-network service: non-browser clients carry no
			// Origin header, browsers on the LAN are accepted
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*Client),
		stopChan: make(chan struct{}),
	}
}

// captureSink collects the element's output blocks with timestamps.
type captureSink struct {
	caps   []pipeline.Caps
	blocks []TimedBlock
}

func (c *captureSink) OfferedCaps() []pipeline.Caps { return c.caps }

func (c *captureSink) Allocate(size int) ([]byte, pipeline.FlowReturn) {
	return make([]byte, size), pipeline.FlowOK
}

func (c *captureSink) Push(buf pipeline.Buffer) pipeline.FlowReturn {
	c.blocks = append(c.blocks, TimedBlock{
		Timestamp: buf.Timestamp,
		Duration:  buf.Duration,
		Data:      buf.Data,
	})
	return pipeline.FlowOK
}

func (c *captureSink) PushEvent(ev pipeline.Event) {}

// LoadTune runs the decoder element over a complete SID file and
// retains the timed blocks for streaming. SID tunes decode far faster
// than realtime, so the whole track is synthesized up front.
func (s *Server) LoadTune(backend siddec.Backend, data []byte, props siddec.Properties) error {
	sink := &captureSink{
		caps: []pipeline.Caps{{Rate: DefaultSampleRate, Channels: DefaultChannels}},
	}

	element, err := siddec.New(backend, sink, props)
	if err != nil {
		return err
	}
	defer element.Close()

	if err := element.Ingest(data); err != nil {
		return err
	}
	if err := element.EndOfInput(); err != nil {
		return err
	}
	element.Run()

	if len(sink.blocks) == 0 {
		return fmt.Errorf("server: tune produced no audio")
	}

	s.format = sink.caps[0]
	s.blocks = sink.blocks

	if md := element.Metadata(); md != nil {
		s.meta = protocol.TuneMetadata{
			Title:     md.Title,
			Artist:    md.Artist,
			Copyright: md.Copyright,
			Songs:     md.Songs,
			Song:      props.TuneIndex,
		}
	}

	last := s.blocks[len(s.blocks)-1]
	log.Printf("server: decoded %q: %d blocks, %v",
		s.meta.Title, len(s.blocks),
		time.Duration(last.Timestamp+last.Duration))
	return nil
}

// Start begins serving. It blocks until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	if len(s.blocks) == 0 {
		return fmt.Errorf("server: no tune loaded")
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			log.Printf("server: mDNS advertisement failed: %v", err)
		}
	}

	s.mux.HandleFunc("/sidstream", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.mux,
	}

	log.Printf("server: %s listening on port %d", s.config.Name, s.config.Port)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down and disconnects all listeners.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)

		if s.mdnsManager != nil {
			s.mdnsManager.Stop()
		}

		s.clientsMu.Lock()
		for _, client := range s.clients {
			client.Conn.Close()
		}
		s.clientsMu.Unlock()

		if s.httpServer != nil {
			s.httpServer.Close()
		}
		s.wg.Wait()
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.handleConnection(conn)
	}()
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	hello, err := readHello(conn)
	if err != nil {
		log.Printf("server: handshake failed: %v", err)
		return
	}

	client := &Client{
		ID:       hello.ClientID,
		Name:     hello.Name,
		Conn:     conn,
		Codec:    s.pickCodec(hello.SupportedFormats),
		sendChan: make(chan interface{}, 64),
		done:     make(chan struct{}),
	}
	if client.ID == "" {
		client.ID = uuid.New().String()
	}

	s.clientsMu.Lock()
	s.clients[client.ID] = client
	s.clientsMu.Unlock()

	log.Printf("server: client %s (%s) connected, codec %s",
		client.Name, client.ID, client.Codec)

	go s.clientWriter(client)

	s.sendMessage(client, "server/hello", protocol.ServerHello{
		ServerID:        s.serverID,
		Name:            s.config.Name,
		Version:         protocol.ProtocolVersion,
		Product:         version.Product,
		Manufacturer:    version.Manufacturer,
		SoftwareVersion: version.Version,
	})
	s.sendMessage(client, "stream/start", protocol.StreamStart{
		Format: protocol.AudioFormat{
			Codec:      client.Codec,
			SampleRate: s.format.Rate,
			Channels:   s.format.Channels,
			BitDepth:   16,
		},
		Tune: &s.meta,
	})

	go s.streamTune(client)

	// read side: watch for goodbye or disconnect
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "client/goodbye" {
			break
		}
		if s.config.Debug {
			log.Printf("server: message from %s: %s", client.ID, msg.Type)
		}
	}

	close(client.done)
	s.clientsMu.Lock()
	delete(s.clients, client.ID)
	s.clientsMu.Unlock()
	log.Printf("server: client %s disconnected", client.ID)
}

// pickCodec selects the first client-offered codec the server can
// produce; same first-candidate policy the decoder element uses for
// its own format negotiation.
func (s *Server) pickCodec(formats []protocol.AudioFormat) string {
	for _, f := range formats {
		switch f.Codec {
		case "pcm":
			return "pcm"
		case "opus":
			if s.format.Rate == DefaultSampleRate {
				return "opus"
			}
		}
	}
	return "pcm"
}

// clientWriter serializes all writes to one connection.
func (s *Server) clientWriter(client *Client) {
	for {
		select {
		case msg := <-client.sendChan:
			var err error
			switch m := msg.(type) {
			case []byte:
				err = client.Conn.WriteMessage(websocket.BinaryMessage, m)
			default:
				err = client.Conn.WriteJSON(m)
			}
			if err != nil {
				log.Printf("server: write to %s failed: %v", client.ID, err)
				return
			}
		case <-client.done:
			return
		case <-s.stopChan:
			return
		}
	}
}

// streamTune sends the decoded blocks to one client, paced by their
// durations after an initial burst.
func (s *Server) streamTune(client *Client) {
	var enc *OpusEncoder
	if client.Codec == "opus" {
		var err error
		enc, err = NewOpusEncoder(s.format.Rate, s.format.Channels, OpusFrameSize)
		if err != nil {
			log.Printf("server: opus setup for %s failed, falling back to pcm: %v",
				client.ID, err)
			client.Codec = "pcm"
		}
	}

	for i, block := range s.blocks {
		select {
		case <-client.done:
			return
		case <-s.stopChan:
			return
		default:
		}

		if enc != nil {
			packets, err := enc.Encode(blockToSamples(block.Data))
			if err != nil {
				log.Printf("server: opus encode for %s failed: %v", client.ID, err)
				return
			}
			for _, pkt := range packets {
				s.sendBinary(client, protocol.EncodeAudioChunk(block.Timestamp, pkt))
			}
		} else {
			s.sendBinary(client, protocol.EncodeAudioChunk(block.Timestamp, block.Data))
		}

		if i >= burstBlocks {
			time.Sleep(time.Duration(block.Duration))
		}
	}

	if enc != nil {
		if pkt, err := enc.Flush(); err == nil && pkt != nil {
			last := s.blocks[len(s.blocks)-1]
			s.sendBinary(client, protocol.EncodeAudioChunk(last.Timestamp+last.Duration, pkt))
		}
	}

	s.sendMessage(client, "stream/end", protocol.StreamEnd{Reason: "end-of-tune"})
}

func (s *Server) sendMessage(client *Client, msgType string, payload interface{}) {
	msg := protocol.Message{Type: msgType, Payload: payload}
	select {
	case client.sendChan <- msg:
	case <-client.done:
	case <-s.stopChan:
	}
}

func (s *Server) sendBinary(client *Client, data []byte) {
	select {
	case client.sendChan <- data:
	case <-client.done:
	case <-s.stopChan:
	}
}

func readHello(conn *websocket.Conn) (*protocol.ClientHello, error) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading hello: %w", err)
	}

	var msg struct {
		Type    string               `json:"type"`
		Payload protocol.ClientHello `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parsing hello: %w", err)
	}
	if msg.Type != "client/hello" {
		return nil, fmt.Errorf("expected client/hello, got %q", msg.Type)
	}
	return &msg.Payload, nil
}

// blockToSamples converts an S16LE byte block to interleaved samples.
func blockToSamples(block []byte) []int16 {
	samples := make([]int16, len(block)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(block[i*2:]))
	}
	return samples
}
