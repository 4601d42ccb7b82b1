// ABOUTME: Bubbletea model for the sidplay terminal interface
// ABOUTME: Shows tune metadata, playback position, and volume controls

package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Model holds the TUI state
type Model struct {
	// Tune metadata
	title     string
	artist    string
	copyright string
	song      int
	songs     int

	// Stream format
	sampleRate int
	channels   int

	// Playback state
	playing  bool
	finished bool
	position time.Duration

	// Volume controls
	volume int
	muted  bool

	// UI state
	width    int
	height   int
	showHelp bool
	quitting bool

	// Volume control channel
	volumeCtrl *VolumeControl
}

// StatusMsg carries playback updates into the TUI
type StatusMsg struct {
	Title      string
	Artist     string
	Copyright  string
	Song       int
	Songs      int
	SampleRate int
	Channels   int
	Playing    bool
	Finished   bool
	Position   time.Duration
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StatusMsg:
		m.applyStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.volumeCtrl != nil {
			close(m.volumeCtrl.Quit)
		}
		return m, tea.Quit

	case "up", "+":
		if m.volume < 100 {
			m.volume += 5
			if m.volume > 100 {
				m.volume = 100
			}
			m.sendVolumeChange()
		}
		return m, nil

	case "down", "-":
		if m.volume > 0 {
			m.volume -= 5
			if m.volume < 0 {
				m.volume = 0
			}
			m.sendVolumeChange()
		}
		return m, nil

	case "m":
		m.muted = !m.muted
		m.sendVolumeChange()
		return m, nil

	case "h", "?":
		m.showHelp = !m.showHelp
		return m, nil
	}

	return m, nil
}

func (m *Model) sendVolumeChange() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChange{Volume: m.volume, Muted: m.muted}:
	default:
		// Drop the update if the consumer is behind
	}
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Title != "" {
		m.title = msg.Title
	}
	if msg.Artist != "" {
		m.artist = msg.Artist
	}
	if msg.Copyright != "" {
		m.copyright = msg.Copyright
	}
	if msg.Song > 0 {
		m.song = msg.Song
	}
	if msg.Songs > 0 {
		m.songs = msg.Songs
	}
	if msg.SampleRate > 0 {
		m.sampleRate = msg.SampleRate
	}
	if msg.Channels > 0 {
		m.channels = msg.Channels
	}
	m.playing = msg.Playing
	if msg.Finished {
		m.finished = true
		m.playing = false
	}
	if msg.Position > 0 {
		m.position = msg.Position
	}
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("  ╔══════════════════════════════════════════╗\n")
	b.WriteString("  ║              sidplay                     ║\n")
	b.WriteString("  ╚══════════════════════════════════════════╝\n")
	b.WriteString("\n")

	b.WriteString(m.renderTune())
	b.WriteString("\n")
	b.WriteString(m.renderPlayback())
	b.WriteString("\n")
	b.WriteString(m.renderVolume())
	b.WriteString("\n")

	if m.showHelp {
		b.WriteString(m.renderHelp())
	} else {
		b.WriteString("  Press 'h' for help, 'q' to quit\n")
	}

	return b.String()
}

func (m Model) renderTune() string {
	var b strings.Builder

	title := m.title
	if title == "" {
		title = "<unknown>"
	}
	b.WriteString(fmt.Sprintf("  Title:     %s\n", truncate(title, 40)))
	if m.artist != "" {
		b.WriteString(fmt.Sprintf("  Artist:    %s\n", truncate(m.artist, 40)))
	}
	if m.copyright != "" {
		b.WriteString(fmt.Sprintf("  Released:  %s\n", truncate(m.copyright, 40)))
	}
	if m.songs > 0 {
		b.WriteString(fmt.Sprintf("  Song:      %d of %d\n", m.song, m.songs))
	}

	return b.String()
}

func (m Model) renderPlayback() string {
	var b strings.Builder

	state := "stopped"
	if m.playing {
		state = "playing"
	}
	if m.finished {
		state = "finished"
	}

	b.WriteString(fmt.Sprintf("  State:     %s\n", state))
	if m.sampleRate > 0 {
		b.WriteString(fmt.Sprintf("  Format:    %d Hz %s\n", m.sampleRate, channelName(m.channels)))
	}
	b.WriteString(fmt.Sprintf("  Position:  %s\n", formatDuration(m.position)))

	return b.String()
}

func (m Model) renderVolume() string {
	var b strings.Builder

	bar := renderBar(m.volume, 100, 20)
	muteStr := ""
	if m.muted {
		muteStr = " [MUTED]"
	}
	b.WriteString(fmt.Sprintf("  Volume:    %s %d%%%s\n", bar, m.volume, muteStr))

	return b.String()
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString("  Controls:\n")
	b.WriteString("    up/+     Volume up\n")
	b.WriteString("    down/-   Volume down\n")
	b.WriteString("    m        Toggle mute\n")
	b.WriteString("    h/?      Toggle this help\n")
	b.WriteString("    q        Quit\n")

	return b.String()
}

// renderBar renders a progress bar
func renderBar(value, max, width int) string {
	if max <= 0 {
		max = 1
	}
	filled := value * width / max
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < width; i++ {
		if i < filled {
			b.WriteString("█")
		} else {
			b.WriteString("░")
		}
	}
	b.WriteString("]")
	return b.String()
}

// truncate shortens a string to maxLen
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// channelName describes a channel count
func channelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
