package assets

import (
	_ "embed"
)

// DefaultConfigYAML contains the embedded default configuration.
//
//go:embed defaults/config.yaml
var DefaultConfigYAML []byte

// DefaultSystemPrompt is sent when the config does not override generation.system_prompt.
//
//go:embed defaults/system_prompt.md
var DefaultSystemPrompt string
