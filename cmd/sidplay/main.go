// ABOUTME: Entry point for the sidplay command
// ABOUTME: Decodes a SID tune and plays it on the local audio device

package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sidstream/sidstream-go/internal/player"
	"github.com/sidstream/sidstream-go/internal/ui"
	"github.com/sidstream/sidstream-go/pkg/pipeline"
	"github.com/sidstream/sidstream-go/pkg/siddec"
	"github.com/sidstream/sidstream-go/pkg/sidplayfp"
	tea "github.com/charmbracelet/bubbletea"
)

var (
	song       = flag.Int("song", 0, "Sub-song to play (0 = tune default)")
	clock      = flag.String("clock", "pal", "Clock chip to emulate: pal, ntsc or any")
	filter     = flag.Bool("filter", true, "Enable SID filter emulation")
	measured   = flag.Bool("measured-volume", false, "Use measured volume tables")
	mos8580    = flag.Bool("mos8580", false, "Force the MOS 8580 SID model")
	forceSpeed = flag.Bool("force-speed", false, "Force tune speed to the clock standard")
	blocksize  = flag.Int("blocksize", siddec.DefaultBlocksize, "Output block size in bytes")
	rate       = flag.Int("rate", 44100, "Output sample rate in Hz")
	stereo     = flag.Bool("stereo", false, "Decode to stereo instead of mono")
	volume     = flag.Int("volume", 100, "Initial volume (0-100)")
	logFile    = flag.String("log-file", "sidplay.log", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	streamLogs = flag.Bool("stream-logs", false, "Alias for -no-tui")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <tune.sid>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	tunePath := flag.Arg(0)

	useTUI := !(*noTUI || *streamLogs)

	// Set up logging
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file
		log.SetOutput(f)
	} else {
		multiWriter := io.MultiWriter(os.Stdout, f)
		log.SetOutput(multiWriter)
	}

	clockSpec, err := parseClock(*clock)
	if err != nil {
		log.Fatalf("%v", err)
	}

	data, err := os.ReadFile(tunePath)
	if err != nil {
		log.Fatalf("error reading tune: %v", err)
	}

	channels := 1
	if *stereo {
		channels = 2
	}

	if !useTUI {
		log.Printf("Playing %s at %d Hz", tunePath, *rate)
	}

	// Audio output
	out := player.NewOutput()
	if err := out.Open(*rate, channels); err != nil {
		log.Fatalf("error opening audio output: %v", err)
	}
	defer func() { _ = out.Close() }()
	out.SetVolume(*volume)

	// TUI setup
	var tuiProg *tea.Program
	var volumeCtrl *ui.VolumeControl

	if useTUI {
		volumeCtrl = ui.NewVolumeControl()
		tuiProg = ui.Run(volumeCtrl)
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Printf("TUI exited: %v", err)
			}
		}()
		go func() {
			for change := range volumeCtrl.Changes {
				out.SetVolume(change.Volume)
				out.SetMuted(change.Muted)
			}
		}()
	}

	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	// Decoder element wired to the audio output
	caps := []pipeline.Caps{{Rate: *rate, Channels: channels}}
	sink := player.NewSink(caps, out.Write)
	sink.OnTags = func(tags pipeline.TagsEvent) {
		log.Printf("tune: %q by %q (%s)", tags.Title, tags.Artist, tags.Copyright)
	}

	props := siddec.DefaultProperties()
	props.TuneIndex = *song
	props.Clock = clockSpec
	props.Filter = *filter
	props.MeasuredVolume = *measured
	props.MOS8580 = *mos8580
	props.ForceSpeed = *forceSpeed
	props.Blocksize = *blocksize

	el, err := siddec.New(sidplayfp.New(), sink, props)
	if err != nil {
		log.Fatalf("error creating decoder: %v", err)
	}
	defer el.Close()
	el.OnError = func(err error) {
		log.Printf("decode error: %v", err)
	}

	if err := el.Ingest(data); err != nil {
		log.Fatalf("error buffering tune: %v", err)
	}
	if err := el.EndOfInput(); err != nil {
		log.Fatalf("error starting tune: %v", err)
	}

	if info := el.Metadata(); info != nil {
		updateTUI(ui.StatusMsg{
			Title:      info.Title,
			Artist:     info.Artist,
			Copyright:  info.Copyright,
			Song:       currentSong(*song, info),
			Songs:      info.Songs,
			SampleRate: *rate,
			Channels:   channels,
			Playing:    true,
		})
	}

	// Handle shutdown
	stop := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("Received %v signal, stopping", sig)
		case <-quitChan(volumeCtrl):
		}
		close(stop)
	}()

	// Production loop with periodic position updates
	lastUpdate := time.Now()
	for el.Produce() {
		select {
		case <-stop:
			el.Close()
		default:
		}
		if time.Since(lastUpdate) >= 250*time.Millisecond {
			lastUpdate = time.Now()
			if pos, err := el.Position(siddec.FormatTime); err == nil {
				updateTUI(ui.StatusMsg{Playing: true, Position: time.Duration(pos)})
			}
		}
	}

	out.Drain()
	updateTUI(ui.StatusMsg{Finished: true})
	log.Printf("Playback finished")

	if tuiProg != nil {
		// Leave the TUI up until the user quits
		<-stop
		tuiProg.Quit()
	}
}

// parseClock maps the -clock flag onto a clock spec.
func parseClock(name string) (siddec.ClockSpec, error) {
	switch name {
	case "pal":
		return siddec.ClockPAL, nil
	case "ntsc":
		return siddec.ClockNTSC, nil
	case "any":
		return siddec.ClockAny, nil
	default:
		return 0, fmt.Errorf("unknown clock %q (want pal, ntsc or any)", name)
	}
}

// currentSong resolves the song index shown in the TUI.
func currentSong(requested int, info *siddec.TuneInfo) int {
	if requested > 0 {
		return requested
	}
	return info.StartSong
}

// quitChan returns the TUI quit channel, or a channel that never
// fires when running without a TUI.
func quitChan(ctrl *ui.VolumeControl) <-chan struct{} {
	if ctrl == nil {
		return make(chan struct{})
	}
	return ctrl.Quit
}
