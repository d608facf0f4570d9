package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/doeshing/oncomn/internal/domain"
)

var (
	fieldDoneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	fieldPendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// LiveRenderer prints a generation while it streams: the reasoning text as
// it grows, then one progress line per update once the code block opens.
// Update is a session.Subscriber.
type LiveRenderer struct {
	out       io.Writer
	animate   bool
	spinner   *Spinner
	reasoning *color.Color

	mu       sync.Mutex
	printed  string
	inCode   bool
	progress string
	// first is the first progress line written without a terminal.
	first  string
	closed bool
}

// NewLiveRenderer writes to out. Spinner and carriage-return redraws are
// only used when out is a terminal.
func NewLiveRenderer(out io.Writer) *LiveRenderer {
	r := &LiveRenderer{
		out:       out,
		animate:   isTerminal(out),
		reasoning: color.New(color.FgHiBlack),
	}
	if r.animate {
		r.spinner = NewSpinner(out, "waiting for the model...")
	}
	return r
}

// Start shows the waiting spinner.
func (r *LiveRenderer) Start() {
	if r.spinner != nil {
		r.spinner.Start()
	}
}

// Stop clears the spinner and terminates the progress line.
func (r *LiveRenderer) Stop() {
	r.stopSpinner()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLine()
}

// Update renders one session update.
func (r *LiveRenderer) Update(update domain.SessionUpdate) {
	if update.State != domain.StateIdle {
		r.stopSpinner()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	extraction := update.Extraction
	switch update.State {
	case domain.StateReasoning:
		r.writeReasoning(extraction.Result.Reasoning)
	case domain.StateInCodeBlock:
		if !r.inCode {
			r.writeReasoning(extraction.Result.Reasoning)
			if r.printed != "" {
				fmt.Fprintln(r.out)
			}
			r.inCode = true
		}
		r.writeProgress(extraction)
	case domain.StateDone, domain.StateCancelled, domain.StateFailed:
		if r.inCode {
			r.writeProgress(extraction)
		} else {
			r.writeReasoning(extraction.Result.Reasoning)
		}
		r.endLine()
		if update.State == domain.StateCancelled {
			fmt.Fprintln(r.out, color.YellowString("cancelled, keeping the partial result"))
		}
	}
}

// writeReasoning prints the part of reasoning not yet shown. The extracted
// reasoning is recomputed from the whole buffer, so only a strict extension
// of what was printed is appended.
func (r *LiveRenderer) writeReasoning(reasoning string) {
	if reasoning == "" || reasoning == r.printed {
		return
	}
	if !strings.HasPrefix(reasoning, r.printed) {
		return
	}
	r.reasoning.Fprint(r.out, reasoning[len(r.printed):])
	r.printed = reasoning
}

func (r *LiveRenderer) writeProgress(extraction domain.Extraction) {
	line := progressLine(extraction)
	if line == r.progress {
		return
	}
	if r.animate {
		fmt.Fprintf(r.out, "\r\033[K%s", line)
	} else if r.first == "" {
		// Without a terminal only the first and last progress lines are written.
		fmt.Fprintln(r.out, line)
		r.first = line
	}
	r.progress = line
}

func (r *LiveRenderer) endLine() {
	if r.closed {
		return
	}
	r.closed = true

	switch {
	case r.progress != "" && r.animate:
		fmt.Fprintln(r.out)
	case r.progress != "" && r.progress != r.first:
		fmt.Fprintln(r.out, r.progress)
	case r.progress == "" && r.printed != "":
		fmt.Fprintln(r.out)
	}
}

func (r *LiveRenderer) stopSpinner() {
	if r.spinner != nil {
		r.spinner.Stop()
	}
}

// progressLine reports the size of every code field, marking the ones not
// seen yet.
func progressLine(extraction domain.Extraction) string {
	missing := make(map[domain.CodeField]bool, len(extraction.Missing))
	for _, field := range extraction.Missing {
		missing[field] = true
	}

	parts := make([]string, 0, len(domain.CodeFields()))
	for _, field := range domain.CodeFields() {
		name := strings.TrimPrefix(string(field), "generated-")
		if missing[field] {
			parts = append(parts, fieldPendingStyle.Render(name+" …"))
			continue
		}
		size := humanize.Bytes(uint64(len(extraction.Result.Field(field))))
		parts = append(parts, fieldDoneStyle.Render(name+" "+size))
	}
	return strings.Join(parts, "  ")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
