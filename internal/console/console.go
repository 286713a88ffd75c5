// Package console renders the speed-test widget as plain terminal lines.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"speedtest-pro/internal/analysis"
	"speedtest-pro/internal/gauge"
	"speedtest-pro/pkg/models"
)

const (
	startLabel   = "[ START TEST ]"
	testingLabel = "[ TESTING... ]"
	placeholder  = "--"
	defaultWidth = 30
)

// View writes widget updates to an io.Writer. Consecutive duplicate
// progress and speed updates are collapsed.
type View struct {
	mu           sync.Mutex
	out          io.Writer
	width        int
	lastProgress string
	lastSpeed    float64
	speedShown   bool
}

// New creates a console view; width is the gauge width in cells
func New(out io.Writer, width int) *View {
	if width <= 0 {
		width = defaultWidth
	}
	return &View{out: out, width: width}
}

func (v *View) printf(format string, args ...interface{}) {
	fmt.Fprintf(v.out, format+"\n", args...)
}

// ResetReadings blanks the metrics and parks the needle at zero
func (v *View) ResetReadings() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.lastProgress = ""
	v.speedShown = false
	v.printf("Download: %s  Upload: %s  Ping: %s", placeholder, placeholder, placeholder)
	v.speedLocked(0)
}

// HideError does nothing: a printed banner stays in the scrollback
func (v *View) HideError() {}

// ShowError prints the error banner
func (v *View) ShowError(title, description string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.printf("[!] %s: %s", title, description)
}

// ShowProgress prints a progress message unless it repeats the last one
func (v *View) ShowProgress(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if message == v.lastProgress {
		return
	}
	v.lastProgress = message
	v.printf("... %s", message)
}

// HideProgress forgets the last progress message
func (v *View) HideProgress() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastProgress = ""
}

// SetTrigger prints the start button state
func (v *View) SetTrigger(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if enabled {
		v.printf("%s", startLabel)
	} else {
		v.printf("%s", testingLabel)
	}
}

// ShowServer prints the server card
func (v *View) ShowServer(name, location, id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.printf("Server: %s | %s | %s", name, location, id)
}

// ShowServerName prints only the server name line
func (v *View) ShowServerName(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.printf("Server: %s", name)
}

// ShowSpeed moves the needle
func (v *View) ShowSpeed(mbps float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.speedLocked(mbps)
}

func (v *View) speedLocked(mbps float64) {
	if v.speedShown && mbps == v.lastSpeed {
		return
	}
	v.speedShown = true
	v.lastSpeed = mbps
	v.printf("%s", gauge.Bar(gauge.Read(mbps), v.width))
}

// ShowResults prints the final metrics and the activity analysis
func (v *View) ShowResults(res *models.TestResult, fitness []analysis.Fitness) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.printf("Download: %.2f Mbps  Upload: %.2f Mbps  Ping: %.2f ms  Jitter: %.2f ms",
		res.Download, res.Upload, res.Ping, res.Jitter)

	if len(fitness) == 0 {
		return
	}
	nameWidth := 0
	for _, f := range fitness {
		if len(f.Name) > nameWidth {
			nameWidth = len(f.Name)
		}
	}
	v.printf("Activity analysis:")
	for _, f := range fitness {
		v.printf("  %-*s  %-9s %s", nameWidth, f.Name, f.Rating, strings.Repeat("*", f.Score))
	}
}
