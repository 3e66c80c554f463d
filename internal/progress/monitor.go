package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/linkmesh/linkmesh/internal/models"
)

// MonitorBar renders the 0..100 progress of a running analysis job. On a
// non-TTY it prints one line per status change instead of animating.
type MonitorBar struct {
	bar        *progressbar.ProgressBar
	out        io.Writer
	isTerminal bool
	lastMsg    string
}

// NewMonitorBar creates a job progress bar writing to w (nil means stderr).
func NewMonitorBar(w io.Writer) *MonitorBar {
	if w == nil {
		w = os.Stderr
	}
	isTerminal := false
	if f, ok := w.(*os.File); ok {
		isTerminal = term.IsTerminal(int(f.Fd()))
	}

	m := &MonitorBar{out: w, isTerminal: isTerminal}
	if isTerminal {
		m.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("waiting"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		)
	}
	return m
}

// Update renders the descriptor. Progress may move backwards; the engine's
// frames always win.
func (m *MonitorBar) Update(desc models.JobDescriptor) {
	if m.bar != nil {
		if desc.Message != "" && desc.Message != m.lastMsg {
			m.bar.Describe(desc.Message)
		}
		m.bar.Set(desc.Progress)
	} else if desc.Message != m.lastMsg || desc.Status.Terminal() {
		fmt.Fprintf(m.out, "[%3d%%] %s: %s\n", desc.Progress, desc.Status, desc.Message)
	}
	m.lastMsg = desc.Message
}

// Finish clears the bar.
func (m *MonitorBar) Finish() {
	if m.bar != nil {
		m.bar.Finish()
	}
}
