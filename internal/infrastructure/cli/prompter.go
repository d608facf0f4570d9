package cli

import (
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"

	"github.com/doeshing/oncomn/internal/ports"
)

// Prompter implements ConfirmationPrompter with interactive survey prompts.
type Prompter struct {
	interactive bool
}

// NewPrompter builds a prompter. Prompts are only shown when stdin is a terminal.
func NewPrompter() *Prompter {
	return &Prompter{interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())}
}

// Enabled indicates the prompter can ask questions.
func (p *Prompter) Enabled() bool {
	return p.interactive
}

// Confirm asks a yes/no question; the default answer is no.
func (p *Prompter) Confirm(message string) (bool, error) {
	confirm := false
	question := &survey.Confirm{
		Message: message,
		Default: false,
	}
	if err := survey.AskOne(question, &confirm); err != nil {
		return false, err
	}
	return confirm, nil
}

var _ ports.ConfirmationPrompter = (*Prompter)(nil)
