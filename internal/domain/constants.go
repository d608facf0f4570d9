package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
	// ExportFilePermissions is the permission for exported project files (rw-r--r--)
	ExportFilePermissions = 0o644
)

// Timeout and duration constants
const (
	// DefaultHTTPClientTimeout bounds non-streaming requests
	DefaultHTTPClientTimeout = 120 * time.Second
	// DefaultModelTestTimeout is the default timeout for model connectivity checks
	DefaultModelTestTimeout = 30 * time.Second
)

// Generation constants
const (
	// DefaultTemperature is the sampling temperature sent with every request
	DefaultTemperature = 0.5
	// DefaultMaxTokens is the completion budget sent with every request
	DefaultMaxTokens = 8192
	// MaxUnescapePasses bounds repeated unescaping of doubly-escaped output
	MaxUnescapePasses = 5
)

// Request header constants
const (
	DefaultReferer = "http://localhost"
	DefaultTitle   = "Frontend Code Generator"
)

// Project constants
const (
	// DefaultProjectListLimit is the default number of projects to display
	DefaultProjectListLimit = 50
	// SenderUser marks prompts typed by the user
	SenderUser = "user"
	// SenderAI marks replies recorded from the model
	SenderAI = "ai"
)

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
)
