// ABOUTME: TUI program setup and volume control channels
// ABOUTME: Bridges bubbletea key events to the audio output

package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChange is a volume adjustment from the TUI
type VolumeChange struct {
	Volume int
	Muted  bool
}

// VolumeControl carries volume changes out of the TUI
type VolumeControl struct {
	Changes chan VolumeChange
	Quit    chan struct{}
}

// NewVolumeControl creates volume control channels
func NewVolumeControl() *VolumeControl {
	return &VolumeControl{
		Changes: make(chan VolumeChange, 8),
		Quit:    make(chan struct{}),
	}
}

// NewModel creates a TUI model
func NewModel(volCtrl *VolumeControl) Model {
	return Model{
		volume:     100,
		volumeCtrl: volCtrl,
	}
}

// Run starts the TUI program
func Run(volCtrl *VolumeControl) *tea.Program {
	return tea.NewProgram(NewModel(volCtrl), tea.WithAltScreen())
}
