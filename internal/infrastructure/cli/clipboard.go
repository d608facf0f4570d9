package cli

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/doeshing/oncomn/internal/ports"
)

// Clipboard implements ports.Clipboard using platform-specific tools.
type Clipboard struct{}

// NewClipboard builds the clipboard helper.
func NewClipboard() *Clipboard {
	return &Clipboard{}
}

func (c *Clipboard) Enabled() bool {
	switch runtime.GOOS {
	case "darwin", "linux", "windows":
		return true
	default:
		return false
	}
}

// Copy copies text to the system clipboard.
func (c *Clipboard) Copy(text string) error {
	if !c.Enabled() {
		return fmt.Errorf("clipboard not supported on %s", runtime.GOOS)
	}
	cmd, err := clipboardCommand()
	if err != nil {
		return err
	}
	cmd.Stdin = bytes.NewBufferString(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

func clipboardCommand() (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("pbcopy"), nil
	case "windows":
		return exec.Command("clip"), nil
	}

	// Prefer wl-copy under Wayland, xclip/xsel otherwise.
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if _, err := exec.LookPath("wl-copy"); err == nil {
			return exec.Command("wl-copy"), nil
		}
	}
	if _, err := exec.LookPath("xclip"); err == nil {
		return exec.Command("xclip", "-selection", "clipboard"), nil
	}
	if _, err := exec.LookPath("xsel"); err == nil {
		return exec.Command("xsel", "--clipboard", "--input"), nil
	}
	if _, err := exec.LookPath("wl-copy"); err == nil {
		return exec.Command("wl-copy"), nil
	}
	return nil, fmt.Errorf("clipboard utilities not found (install xclip, xsel or wl-clipboard)")
}

var _ ports.Clipboard = (*Clipboard)(nil)
