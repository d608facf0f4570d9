package domain

import (
	"fmt"
	"strings"
	"time"
)

// Rich Domain Model: 將業務邏輯封裝在 Domain 實體中
// 符合 Clean Code 原則 - 貧血模型 → 富領域模型

// FindModelByName searches for a model by its name
// Returns the model definition and true if found, empty model and false otherwise
func (c *Config) FindModelByName(name string) (ModelDefinition, bool) {
	for _, model := range c.Models {
		if model.Name == name {
			return model, true
		}
	}
	return ModelDefinition{}, false
}

// HasModel checks if a model with the given name exists in the configuration
func (c *Config) HasModel(name string) bool {
	_, exists := c.FindModelByName(name)
	return exists
}

// AddModel adds a new model to the configuration
// Returns an error if a model with the same name already exists
func (c *Config) AddModel(model ModelDefinition) error {
	if c.HasModel(model.Name) {
		return fmt.Errorf("model with name %s already exists", model.Name)
	}

	c.Models = append(c.Models, model)
	return nil
}

// RemoveModel deletes a model definition
// Returns an error if the model is missing or still selected as a preference
func (c *Config) RemoveModel(name string) error {
	if c.Preferences.LocalModel == name || c.Preferences.RemoteModel == name {
		return fmt.Errorf("model %s is selected in preferences; select another model first", name)
	}
	for i, model := range c.Models {
		if model.Name == name {
			c.Models = append(c.Models[:i], c.Models[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("model %s not found", name)
}

// UseModel selects a model as the local or remote preference, depending on
// where the model runs.
func (c *Config) UseModel(name string) error {
	model, ok := c.FindModelByName(name)
	if !ok {
		return fmt.Errorf("model %s not found", name)
	}
	if model.Local {
		c.Preferences.LocalModel = name
	} else {
		c.Preferences.RemoteModel = name
	}
	return nil
}

// ModelFor resolves the model used for one generation.
// An explicit override wins; otherwise the local or remote preference is used.
func (c *Config) ModelFor(useLocal bool, override string) (ModelDefinition, error) {
	name := override
	if name == "" {
		name = c.Preferences.RemoteModel
		if useLocal {
			name = c.Preferences.LocalModel
		}
	}

	if name == "" {
		for _, model := range c.Models {
			if model.Local == useLocal {
				return model, nil
			}
		}
		return ModelDefinition{}, fmt.Errorf("no %s model configured", locality(useLocal))
	}

	model, ok := c.FindModelByName(name)
	if !ok {
		return ModelDefinition{}, fmt.Errorf("model %s not configured", name)
	}
	return model, nil
}

// GetTimeout returns the overall generation timeout
func (c *Config) GetTimeout() time.Duration {
	const defaultTimeoutSeconds = 300

	if c.Preferences.TimeoutSeconds <= 0 {
		return defaultTimeoutSeconds * time.Second
	}
	return time.Duration(c.Preferences.TimeoutSeconds) * time.Second
}

// TemperatureFor returns the sampling temperature for a model
func (c *Config) TemperatureFor(model ModelDefinition) float64 {
	if model.Temperature > 0 {
		return model.Temperature
	}
	if c.Generation.Temperature > 0 {
		return c.Generation.Temperature
	}
	return DefaultTemperature
}

// MaxTokensFor returns the completion token budget for a model
func (c *Config) MaxTokensFor(model ModelDefinition) int {
	if model.MaxTokens > 0 {
		return model.MaxTokens
	}
	if c.Generation.MaxTokens > 0 {
		return c.Generation.MaxTokens
	}
	return DefaultMaxTokens
}

// SystemPromptOrDefault returns the configured system prompt, or fallback when unset
func (c *Config) SystemPromptOrDefault(fallback string) string {
	if strings.TrimSpace(c.Generation.SystemPrompt) != "" {
		return c.Generation.SystemPrompt
	}
	return fallback
}

// IsStreamingEnabled reports whether generations stream by default
func (c *Config) IsStreamingEnabled() bool {
	return !c.Preferences.DisableStreaming
}

// ValidateConsistency checks the internal consistency of the configuration
// Returns an error if there are inconsistencies (e.g., preferred model doesn't exist)
func (c *Config) ValidateConsistency() error {
	seen := make(map[string]struct{}, len(c.Models))
	for _, model := range c.Models {
		if model.Name == "" {
			return fmt.Errorf("model without name")
		}
		if _, dup := seen[model.Name]; dup {
			return fmt.Errorf("model %s declared twice", model.Name)
		}
		seen[model.Name] = struct{}{}
		if model.BaseURL == "" || model.ModelID == "" {
			return fmt.Errorf("model %s requires base_url and model_id", model.Name)
		}
	}

	if c.Preferences.LocalModel != "" && !c.HasModel(c.Preferences.LocalModel) {
		return fmt.Errorf("local model %s does not exist in models list", c.Preferences.LocalModel)
	}
	if c.Preferences.RemoteModel != "" && !c.HasModel(c.Preferences.RemoteModel) {
		return fmt.Errorf("remote model %s does not exist in models list", c.Preferences.RemoteModel)
	}

	return nil
}

func locality(local bool) string {
	if local {
		return "local"
	}
	return "remote"
}
