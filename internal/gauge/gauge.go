// Package gauge holds the speedometer math shared by renderers.
package gauge

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"speedtest-pro/pkg/models"
)

const (
	// MaxSpeed is the full-scale value of the dial in Mbps.
	MaxSpeed = 1000.0
	// BestThreshold lights the "best" badge.
	BestThreshold = 500.0

	downloadCap = 800.0
	uploadCap   = 950.0
	// uploadStart is the progress value at which the backend enters the upload phase.
	uploadStart = 70
)

// Labels are the dial tick values
var Labels = []float64{0, 5, 10, 20, 50, 100, 250, 500, 750, 1000}

// Reading is what a speedometer shows for a speed
type Reading struct {
	Speed float64
	Angle float64 // needle rotation in degrees, -90..90
	Best  bool
}

// Read converts a speed into a needle position
func Read(speed float64) Reading {
	if speed < 0 || math.IsNaN(speed) {
		speed = 0
	}
	pct := math.Min(speed/MaxSpeed, 1)
	return Reading{
		Speed: speed,
		Angle: pct*180 - 90,
		Best:  speed >= BestThreshold,
	}
}

// LabelText formats a tick label, the last one as "1000+"
func LabelText(v float64) string {
	if v >= MaxSpeed {
		return strconv.FormatFloat(MaxSpeed, 'f', -1, 64) + "+"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SimulatedSpeed maps backend progress to an animation value for the dial.
// It is not a measurement. ok is false outside the transfer phases.
func SimulatedSpeed(phase models.Phase, progress int) (speed float64, ok bool) {
	p := float64(progress)
	switch phase {
	case models.PhaseTestingDownload:
		return math.Max(0, math.Min(p*10, downloadCap)), true
	case models.PhaseTestingUpload:
		return math.Max(0, math.Min(downloadCap+(p-uploadStart)*2, uploadCap)), true
	default:
		return 0, false
	}
}

// Bar renders a reading as a fixed-width text gauge
func Bar(r Reading, width int) string {
	if width < 1 {
		width = 1
	}
	filled := int(math.Round((r.Angle + 90) / 180 * float64(width)))
	if filled > width {
		filled = width
	}

	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strings.Repeat("#", filled))
	b.WriteString(strings.Repeat(".", width-filled))
	b.WriteByte(']')
	fmt.Fprintf(&b, " %6.1f Mbps", r.Speed)
	if r.Best {
		b.WriteString(" *BEST*")
	}
	return b.String()
}

// Scale renders the tick labels in order
func Scale() string {
	parts := make([]string, len(Labels))
	for i, v := range Labels {
		parts[i] = LabelText(v)
	}
	return strings.Join(parts, " ")
}
