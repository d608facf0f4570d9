package commands

// CLI-specific constants
const (
	// DefaultEditorCommand is the default editor command
	DefaultEditorCommand = "vi"
	// ModelTestPrompt is sent by `models test`
	ModelTestPrompt = "Reply with the single word: ready"
)

// Error messages
const (
	ErrConfigLoaderUnavailable  = "config loader unavailable"
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrProjectStoreUnavailable  = "project store unavailable"
	ErrWebServerUnavailable     = "web server unavailable"
	ErrKeyRequired              = "--key is required"
	ErrInvalidLimit             = "--limit must be >= 1"
	ErrModelFieldsRequired      = "--name, --base-url and --model-id are required"
	ErrConfirmationRequired     = "cannot ask for confirmation without a terminal; pass --yes"
)

// Success messages
const (
	MsgConfigurationValid       = "Configuration valid"
	MsgNoDifferencesFromDefault = "No differences from default configuration."
	MsgNoProjects               = "No projects yet."
	MsgDeleteCancelled          = "Delete cancelled."
)
