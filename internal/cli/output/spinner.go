package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a message on a terminal while work is in flight.
type Spinner struct {
	w        io.Writer
	message  string
	interval time.Duration

	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSpinner creates a stopped spinner.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:        w,
		message:  message,
		interval: 100 * time.Millisecond,
		done:     make(chan struct{}),
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.w, "\r%s %s", spinnerFrames[i%len(spinnerFrames)], s.message)
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the animation and clears the line. Extra calls are no-ops.
func (s *Spinner) Stop() {
	s.finish("\r\033[K")
}

// Success ends the animation with a check mark.
func (s *Spinner) Success(message string) {
	s.finish(fmt.Sprintf("\r\033[K✓ %s\n", message))
}

// Fail ends the animation with a cross.
func (s *Spinner) Fail(message string) {
	s.finish(fmt.Sprintf("\r\033[K✗ %s\n", message))
}

func (s *Spinner) finish(final string) {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		fmt.Fprint(s.w, final)
	})
}
