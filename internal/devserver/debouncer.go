package devserver

import (
	"sort"
	"sync"
	"time"
)

// Debouncer collects file changes and triggers the callback once no change
// has arrived for the configured duration
type Debouncer struct {
	duration time.Duration
	timer    *time.Timer
	files    map[string]struct{}
	mu       sync.Mutex
	callback func([]string)
	stopped  bool
}

func NewDebouncer(duration time.Duration, callback func([]string)) *Debouncer {
	return &Debouncer{
		duration: duration,
		files:    make(map[string]struct{}),
		callback: callback,
	}
}

// Add records a changed file and restarts the timer
func (d *Debouncer) Add(file string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.files[file] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.files) == 0 {
		d.mu.Unlock()
		return
	}

	files := make([]string, 0, len(d.files))
	for file := range d.files {
		files = append(files, file)
	}
	sort.Strings(files)
	d.files = make(map[string]struct{})
	d.mu.Unlock()

	d.callback(files)
}

// Stop discards pending changes
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.files = make(map[string]struct{})
}
