//go:build rp2040

package main

import (
	"context"
	"image/color"
	"machine"
	"strconv"
	"time"

	"tinygo.org/x/drivers/ssd1306"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"pulsegen/core"
)

var white = color.RGBA{255, 255, 255, 255}

// StatusDisplay draws the current configuration on an SSD1306 panel
type StatusDisplay struct {
	dev    *ssd1306.Device
	cfg    ssd1306.Config
	status func() core.Snapshot
	state  func() core.State
}

// NewStatusDisplay configures the panel on I2C0
func NewStatusDisplay(status func() core.Snapshot, state func() core.State) (*StatusDisplay, error) {
	err := machine.I2C0.Configure(machine.I2CConfig{
		Frequency: 400 * machine.KHz,
		SDA:       DisplaySDA,
		SCL:       DisplaySCL,
	})
	if err != nil {
		return nil, err
	}
	// the panel needs time to start from a cold boot
	time.Sleep(100 * time.Millisecond)

	dev := ssd1306.NewI2C(machine.I2C0)
	cfg := ssd1306.Config{Width: DisplayWidth, Height: DisplayHeight, Address: DisplayAddress, VccState: ssd1306.SWITCHCAPVCC}
	dev.Configure(cfg)
	dev.ClearDisplay()
	return &StatusDisplay{dev: dev, cfg: cfg, status: status, state: state}, nil
}

// Run redraws the page every DisplayRefresh until ctx is done
func (d *StatusDisplay) Run(ctx context.Context) {
	ticker := time.NewTicker(DisplayRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.draw()
		}
	}
}

func (d *StatusDisplay) draw() {
	snap := d.status()
	lines := statusLines(snap, d.state())

	d.dev.ClearBuffer()
	for i, line := range lines {
		tinyfont.WriteLine(d.dev, &proggy.TinySZ8pt7b, 0, int16(10+i*12), line, white)
	}
	d.dev.Display()
}

// statusLines renders the status page text
func statusLines(snap core.Snapshot, state core.State) []string {
	t := snap.Timing
	slow := "OFF"
	if t.Enabled {
		slow = "ON"
	}
	fast := "OFF"
	if snap.Fast.Enabled {
		fast = "ON"
	}
	return []string{
		"RPM " + strconv.FormatFloat(t.RPM, 'f', 1, 64) + " " + slow,
		"Hz " + strconv.FormatFloat(t.FreqHz, 'f', 3, 64) + " x" + strconv.Itoa(t.PulsesPerRev),
		"Pulse " + strconv.Itoa(t.PulsePct) + "% " + state.String(),
		"Fast " + strconv.FormatFloat(snap.Fast.FreqHz, 'f', 0, 64) + "Hz " + strconv.Itoa(snap.Fast.DutyPct) + "% " + fast,
	}
}
