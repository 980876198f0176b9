// Package progressio renders a single-stream byte progress bar to stderr
// for upload and download transfers. It mirrors the multi-tracker progress
// writer used for layer pulls, simplified to the one-stream-at-a-time shape
// a compound transfer needs.
package progressio

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
	"golang.org/x/term"
)

// Tracker reports bytes written or read against a known (or not yet known)
// total. A zero Tracker is a valid no-op, so callers can construct one
// unconditionally and only get a real bar when stderr is a terminal.
type Tracker struct {
	pw      progress.Writer
	tracker *progress.Tracker
}

// Start begins rendering a progress bar titled desc for a transfer of total
// bytes (0 if unknown). Rendering is skipped when stderr isn't a TTY or the
// environment asks for it, in which case the returned Tracker is a no-op.
// Callers must call Stop when the transfer finishes.
func Start(desc string, total int64) *Tracker {
	if !wantProgressBar() {
		return &Tracker{}
	}

	pw := progress.NewWriter()
	pw.SetAutoStop(false)
	pw.SetTrackerLength(60)
	pw.SetTrackerPosition(progress.PositionRight)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetOutputWriter(os.Stderr)

	style := progress.StyleDefault
	style.Visibility.Time = false
	style.Visibility.Percentage = true
	style.Visibility.Speed = true
	style.Visibility.Tracker = true
	style.Visibility.Value = true
	pw.SetStyle(style)

	tracker := &progress.Tracker{
		Message: desc,
		Total:   total,
		Units:   progress.UnitsBytes,
	}
	pw.AppendTracker(tracker)

	go pw.Render()

	return &Tracker{pw: pw, tracker: tracker}
}

// SetTotal updates the total once it becomes known, for transfers whose
// size isn't available until the source has been opened.
func (t *Tracker) SetTotal(total int64) {
	if t.tracker != nil {
		t.tracker.UpdateTotal(total)
	}
}

// CountingWriter wraps w so every write advances the tracker by the number
// of bytes written.
func (t *Tracker) CountingWriter(w io.Writer) io.Writer {
	if t.tracker == nil {
		return w
	}
	return io.MultiWriter(w, &trackerWriter{tracker: t.tracker})
}

// CountingReader wraps r so every read advances the tracker by the number
// of bytes read.
func (t *Tracker) CountingReader(r io.Reader) io.Reader {
	if t.tracker == nil {
		return r
	}
	return io.TeeReader(r, &trackerWriter{tracker: t.tracker})
}

// Stop marks the tracker done (or errored) and halts rendering. Safe to
// call on a no-op Tracker.
func (t *Tracker) Stop(err error) {
	if t.tracker == nil {
		return
	}
	if err != nil {
		t.tracker.MarkAsErrored()
	} else {
		t.tracker.MarkAsDone()
	}
	t.pw.Stop()
	time.Sleep(110 * time.Millisecond)
}

type trackerWriter struct {
	tracker *progress.Tracker
}

func (tw *trackerWriter) Write(p []byte) (int, error) {
	tw.tracker.Increment(int64(len(p)))
	return len(p), nil
}

var noProgressEnvVars = []string{
	"NO_PROGRESS",
	"NO_INTERACTIVE",
	"NO_COLOR",
}

var wantProgressBar = sync.OnceValue(func() bool {
	for _, envVar := range noProgressEnvVars {
		if _, exists := os.LookupEnv(envVar); exists {
			return false
		}
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
})
