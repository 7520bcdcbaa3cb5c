// Package trace emits a Chrome trace event file covering the chunk
// pipeline: one event per chunk compress/encode/emit cycle, so a slow
// archive build can be inspected in chrome://tracing. Extraction emits no
// events.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var start = time.Now()

var (
	sinkMu sync.Mutex
	sink   io.Writer = ioutil.Discard
)

// Sink writes all following Event()s as a Chrome trace event file into w.
func Sink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sink = w
	// Start the JSON Array Format; the closing ] is optional and skipped.
	w.Write([]byte{'['})
}

// Enable is a convenience function for creating a trace file at
// $TMPDIR/ectar.traces/prefix.$PID.
func Enable(prefix string) error {
	fn := filepath.Join(os.TempDir(), "ectar.traces", fmt.Sprintf("%s.%d", prefix, os.Getpid()))
	if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
		return err
	}
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	Sink(f)
	return nil
}

// PendingEvent is an in-flight trace event; call Done when the traced
// operation completes.
type PendingEvent struct {
	Name           string      `json:"name"`
	Categories     string      `json:"cat"`
	Type           string      `json:"ph"`
	ClockTimestamp uint64      `json:"ts"`
	Duration       uint64      `json:"dur"`
	Pid            uint64      `json:"pid"`
	Tid            uint64      `json:"tid"`
	Args           interface{} `json:"args"`

	start time.Time
}

// Done finalizes the event and writes it to the sink.
func (pe *PendingEvent) Done() {
	pe.Duration = uint64(time.Since(pe.start) / time.Microsecond)
	b, err := json.Marshal(pe)
	if err != nil {
		panic(err)
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if _, err := sink.Write(append(b, ',')); err != nil {
		log.Printf("[trace] %v", err)
	}
}

// Event starts a new trace event named name on logical track tid (e.g. a
// chunk number), to be closed by calling Done on the returned PendingEvent.
func Event(name string, tid int) *PendingEvent {
	return &PendingEvent{
		Name:           name,
		Type:           "X",
		ClockTimestamp: uint64(time.Since(start) / time.Microsecond),
		Tid:            uint64(tid),
		start:          time.Now(),
	}
}
