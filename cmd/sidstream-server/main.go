// ABOUTME: Entry point for the sidstream streaming server
// ABOUTME: Decodes a SID tune and serves it to WebSocket listeners

package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sidstream/sidstream-go/internal/server"
	"github.com/sidstream/sidstream-go/pkg/siddec"
	"github.com/sidstream/sidstream-go/pkg/sidplayfp"
)

var (
	port    = flag.Int("port", 8927, "WebSocket server port")
	name    = flag.String("name", "", "Server friendly name (default: hostname-sidstream)")
	logFile = flag.String("log-file", "sidstream-server.log", "Log file path")
	debug   = flag.Bool("debug", false, "Enable debug logging")
	noMDNS  = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	song    = flag.Int("song", 0, "Sub-song to stream (0 = tune default)")
	clock   = flag.String("clock", "pal", "Clock chip to emulate: pal, ntsc or any")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <tune.sid>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	tunePath := flag.Arg(0)

	// Set up logging (both file and console)
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	multiWriter := io.MultiWriter(os.Stdout, f)
	log.SetOutput(multiWriter)

	// Determine server name
	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-sidstream", hostname)
	}

	clockSpec, err := parseClock(*clock)
	if err != nil {
		log.Fatalf("%v", err)
	}

	data, err := os.ReadFile(tunePath)
	if err != nil {
		log.Fatalf("error reading tune: %v", err)
	}

	log.Printf("Starting SIDStream Server: %s on port %d", serverName, *port)
	log.Printf("Logging to: %s", *logFile)
	log.Printf("Press Ctrl-C to stop")

	srv := server.New(server.Config{
		Port:       *port,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		Debug:      *debug,
	})

	props := siddec.DefaultProperties()
	props.TuneIndex = *song
	props.Clock = clockSpec

	if err := srv.LoadTune(sidplayfp.New(), data, props); err != nil {
		log.Fatalf("error loading tune: %v", err)
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received %v signal, shutting down gracefully", sig)
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}

func parseClock(spec string) (siddec.ClockSpec, error) {
	switch spec {
	case "pal":
		return siddec.ClockPAL, nil
	case "ntsc":
		return siddec.ClockNTSC, nil
	case "any":
		return siddec.ClockAny, nil
	default:
		return 0, fmt.Errorf("unknown clock %q (want pal, ntsc or any)", spec)
	}
}
