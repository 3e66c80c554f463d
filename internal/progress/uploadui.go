// Package progress renders upload and monitoring progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// UploadUI renders one progress bar per uploaded export file using mpb.
// On a non-TTY it degrades to plain text lines.
type UploadUI struct {
	progress   *mpb.Progress
	isTerminal bool
	totalFiles int
	started    int32
}

// FileBar is the progress bar of a single file upload.
type FileBar struct {
	bar       *mpb.Bar
	ui        *UploadUI
	index     int
	label     string
	filename  string
	size      int64
	startTime time.Time
}

// NewUploadUI creates the UI for totalFiles uploads.
func NewUploadUI(totalFiles int) *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))

	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		isTerminal: isTerminal,
		totalFiles: totalFiles,
	}
}

// StartFile adds a bar for one upload. label names the slot (content, links,
// gsc); localPath and size describe the file.
func (u *UploadUI) StartFile(label, localPath string, size int64) *FileBar {
	index := int(atomic.AddInt32(&u.started, 1))
	filename := filepath.Base(localPath)

	fb := &FileBar{
		ui:        u,
		index:     index,
		label:     label,
		filename:  filename,
		size:      size,
		startTime: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(size,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(fmt.Sprintf("[%d/%d] %s: %s", index, u.totalFiles, label, filename), decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		fmt.Fprintf(os.Stderr, "Uploading [%d/%d] %s: %s (%.1f MiB)\n",
			index, u.totalFiles, label, filename, float64(size)/(1024*1024))
	}
	return fb
}

// WrapReader returns a reader that advances the bar as it is consumed. It is
// handed to the upload as the request body.
func (f *FileBar) WrapReader(r io.Reader) io.Reader {
	if f.bar == nil {
		return r
	}
	return f.bar.ProxyReader(r)
}

// Complete finishes the bar and prints a one-line summary.
func (f *FileBar) Complete(remotePath string, err error) {
	elapsed := time.Since(f.startTime)

	if err != nil {
		if f.bar != nil {
			f.bar.Abort(false)
		}
		f.write(fmt.Sprintf("✗ %s: %s: %v\n", f.label, f.filename, err))
		return
	}

	if f.bar != nil {
		f.bar.SetCurrent(f.size)
		f.bar.SetTotal(f.size, true)
	}
	f.write(fmt.Sprintf("✓ %s: %s → %s (%.1f MiB, %s)\n",
		f.label, f.filename, remotePath,
		float64(f.size)/(1024*1024), elapsed.Round(time.Second)))
}

func (f *FileBar) write(msg string) {
	if f.ui.isTerminal && f.ui.progress != nil {
		f.ui.progress.Write([]byte(msg))
	} else {
		fmt.Fprint(os.Stderr, msg)
	}
}

// Wait blocks until all bars have rendered their final state.
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// LogWriter returns a writer that prints above the active bars.
func (u *UploadUI) LogWriter() io.Writer {
	if u.progress != nil && u.isTerminal {
		return u.progress
	}
	return os.Stderr
}

// IsTerminal reports whether bars are actually rendered.
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}
