package operations

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Config holds the per-operation options supplied at registration.
type Config struct {
	// Timeout bounds the polled lifetime of the operation measured from
	// its start time. Zero selects DefaultTimeout, negative disables it.
	Timeout time.Duration `json:"-"`

	// ShowProgress asks observers to display a progress indicator.
	ShowProgress bool `json:"show_progress"`

	// ShowNotifications asks observers to notify on completion.
	ShowNotifications bool `json:"show_notifications"`

	Description string `json:"description,omitempty" validate:"max=512"`

	// Metadata is caller-defined and passed through to observers untouched.
	Metadata map[string]string `json:"metadata,omitempty" validate:"omitempty,dive,keys,required,max=128,endkeys,max=2048"`
}

// NewConfig returns the documented defaults
func NewConfig() Config {
	return Config{
		Timeout:           DefaultTimeout,
		ShowProgress:      false,
		ShowNotifications: true,
	}
}

// EffectiveTimeout returns the enforced timeout, or zero when disabled
func (c Config) EffectiveTimeout() time.Duration {
	switch {
	case c.Timeout < 0:
		return 0
	case c.Timeout == 0:
		return DefaultTimeout
	}
	return c.Timeout
}

// Validate checks the config against its field constraints
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			msgs = append(msgs, err.Error())
		}
		return NewValidationError("config", strings.Join(msgs, "; "))
	}
	return nil
}

// normalized resolves the timeout default and copies the metadata map.
func (c Config) normalized() Config {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	c.Metadata = maps.Clone(c.Metadata)
	return c
}

type configJSON struct {
	TimeoutMS         *int64            `json:"timeout_ms,omitempty"`
	ShowProgress      bool              `json:"show_progress"`
	ShowNotifications bool              `json:"show_notifications"`
	Description       string            `json:"description,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// TimeoutMillis returns the timeout in milliseconds, or -1 when disabled
func (c Config) TimeoutMillis() int64 {
	if c.Timeout < 0 {
		return -1
	}
	return c.Timeout.Milliseconds()
}

// MarshalJSON encodes the timeout as timeout_ms
func (c Config) MarshalJSON() ([]byte, error) {
	ms := c.TimeoutMillis()
	return json.Marshal(configJSON{
		TimeoutMS:         &ms,
		ShowProgress:      c.ShowProgress,
		ShowNotifications: c.ShowNotifications,
		Description:       c.Description,
		Metadata:          c.Metadata,
	})
}

// UnmarshalJSON decodes over the defaults, so absent fields keep them
func (c *Config) UnmarshalJSON(data []byte) error {
	def := NewConfig()
	raw := configJSON{
		ShowProgress:      def.ShowProgress,
		ShowNotifications: def.ShowNotifications,
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Config{
		Timeout:           def.Timeout,
		ShowProgress:      raw.ShowProgress,
		ShowNotifications: raw.ShowNotifications,
		Description:       raw.Description,
		Metadata:          raw.Metadata,
	}
	if raw.TimeoutMS != nil {
		c.Timeout = time.Duration(*raw.TimeoutMS) * time.Millisecond
	}
	return nil
}

// ConfigBuilder provides a fluent interface for building operation configs
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder starts from NewConfig
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: NewConfig()}
}

// WithTimeout sets the timeout; negative disables it
func (b *ConfigBuilder) WithTimeout(d time.Duration) *ConfigBuilder {
	b.config.Timeout = d
	return b
}

// WithoutTimeout disables timeout enforcement
func (b *ConfigBuilder) WithoutTimeout() *ConfigBuilder {
	b.config.Timeout = -1
	return b
}

func (b *ConfigBuilder) WithProgress(show bool) *ConfigBuilder {
	b.config.ShowProgress = show
	return b
}

func (b *ConfigBuilder) WithNotifications(show bool) *ConfigBuilder {
	b.config.ShowNotifications = show
	return b
}

func (b *ConfigBuilder) WithDescription(desc string) *ConfigBuilder {
	b.config.Description = desc
	return b
}

// WithMetadata adds one metadata entry
func (b *ConfigBuilder) WithMetadata(key, value string) *ConfigBuilder {
	if b.config.Metadata == nil {
		b.config.Metadata = make(map[string]string)
	}
	b.config.Metadata[key] = value
	return b
}

// Build returns the configuration
func (b *ConfigBuilder) Build() Config {
	return b.config.normalized()
}
