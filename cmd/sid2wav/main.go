// ABOUTME: Entry point for the sid2wav command
// ABOUTME: Decodes a SID tune into a RIFF WAVE file

package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sidstream/sidstream-go/internal/player"
	"github.com/sidstream/sidstream-go/pkg/pipeline"
	"github.com/sidstream/sidstream-go/pkg/siddec"
	"github.com/sidstream/sidstream-go/pkg/sidplayfp"
)

var (
	song    = flag.Int("song", 0, "Sub-song to render (0 = tune default)")
	clock   = flag.String("clock", "pal", "Clock chip to emulate: pal, ntsc or any")
	rate    = flag.Int("rate", 44100, "Sample rate in Hz")
	stereo  = flag.Bool("stereo", false, "Render to stereo instead of mono")
	seconds = flag.Int("seconds", 180, "Seconds of audio to render")
	outPath = flag.String("o", "", "Output file (default: input with .wav extension)")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <tune.sid>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}
	tunePath := flag.Arg(0)

	target := *outPath
	if target == "" {
		target = strings.TrimSuffix(tunePath, ".sid") + ".wav"
	}

	if err := render(tunePath, target); err != nil {
		log.Fatalf("sid2wav: %v", err)
	}
	log.Printf("wrote %s", target)
}

func render(tunePath, target string) error {
	data, err := os.ReadFile(tunePath)
	if err != nil {
		return fmt.Errorf("reading tune: %w", err)
	}

	clockSpec, err := parseClock(*clock)
	if err != nil {
		return err
	}

	channels := 1
	if *stereo {
		channels = 2
	}

	// Collect decoded samples instead of playing them
	var samples []int
	sink := player.NewSink([]pipeline.Caps{{Rate: *rate, Channels: channels}}, func(block []byte) error {
		for i := 0; i+1 < len(block); i += 2 {
			samples = append(samples, int(int16(binary.LittleEndian.Uint16(block[i:]))))
		}
		return nil
	})
	sink.OnTags = func(tags pipeline.TagsEvent) {
		log.Printf("tune: %q by %q (%s)", tags.Title, tags.Artist, tags.Copyright)
	}

	props := siddec.DefaultProperties()
	props.TuneIndex = *song
	props.Clock = clockSpec

	el, err := siddec.New(sidplayfp.New(), sink, props)
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	defer el.Close()
	el.OnError = func(err error) {
		log.Printf("decode error: %v", err)
	}

	if err := el.Ingest(data); err != nil {
		return fmt.Errorf("buffering tune: %w", err)
	}
	if err := el.EndOfInput(); err != nil {
		return fmt.Errorf("starting tune: %w", err)
	}

	// SID tunes loop forever, so render a fixed span
	limit := int64(*seconds) * int64(time.Second)
	for el.Produce() {
		pos, err := el.Position(siddec.FormatTime)
		if err != nil {
			return fmt.Errorf("position query: %w", err)
		}
		if pos >= limit {
			break
		}
	}

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer func() { _ = out.Close() }()

	enc := wav.NewEncoder(out, *rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: *rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("writing samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return nil
}

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
