package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Spinner displays an animated spinner with a label while waiting for the
// first chunk of a generation.
type Spinner struct {
	frames   []string
	interval time.Duration
	label    string
	writer   io.Writer
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewSpinner creates a new spinner
func NewSpinner(w io.Writer, label string) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 80 * time.Millisecond,
		label:    label,
		writer:   w,
		stopChan: make(chan struct{}),
	}
}

// Start begins the spinner animation
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	frame := color.New(color.FgMagenta)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for idx := 0; ; idx++ {
			fmt.Fprintf(s.writer, "\r%s %s", frame.Sprint(s.frames[idx%len(s.frames)]), s.label)
			select {
			case <-s.stopChan:
				// Clear the spinner line
				fmt.Fprintf(s.writer, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the spinner animation. It is safe to call more than once.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
}
