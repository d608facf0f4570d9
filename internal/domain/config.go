package domain

// Config mirrors ~/.oncomn/config.yaml.
type Config struct {
	ConfigFormatVersion string             `yaml:"config_format_version"`
	Preferences         Preferences        `yaml:"preferences"`
	Generation          GenerationSettings `yaml:"generation"`
	Models              []ModelDefinition  `yaml:"models"`
	Storage             StorageSettings    `yaml:"storage"`
	Server              ServerSettings     `yaml:"server"`
}

// Preferences captures user level toggles.
type Preferences struct {
	LocalModel       string `yaml:"local_model" default:"deepseek-local"`
	RemoteModel      string `yaml:"remote_model" default:"deepseek-remote"`
	UseLocalModel    bool   `yaml:"use_local_model"`
	DisableStreaming bool   `yaml:"disable_streaming"`
	TimeoutSeconds   int    `yaml:"timeout" default:"300"`
}

// GenerationSettings holds the parameters sent with every chat completion.
// Model-level values take precedence when set.
type GenerationSettings struct {
	SystemPrompt string  `yaml:"system_prompt,omitempty"`
	Temperature  float64 `yaml:"temperature" default:"0.5"`
	MaxTokens    int     `yaml:"max_tokens" default:"8192"`
}

// StorageSettings locates the local project store.
type StorageSettings struct {
	ProjectsDB string `yaml:"projects_db"`
}

// ServerSettings configures `oncomn serve`.
type ServerSettings struct {
	Addr           string   `yaml:"addr" default:":8080"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}
