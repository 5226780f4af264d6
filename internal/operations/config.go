package operations

import (
	"time"
)

// Config represents the operation execution configuration
type Config struct {
	// Step-specific timeouts
	StepTimeouts map[string]time.Duration `json:"step_timeouts"`

	// Retry configuration for steps
	RetryConfig RetryConfig `json:"retry_config"`
}

// NewConfig returns the default operation configuration
func NewConfig() *Config {
	return &Config{
		StepTimeouts: map[string]time.Duration{
			StepIDLoad:   DefaultStepTimeout,
			StepIDTweak:  DefaultStepTimeout,
			StepIDExport: DefaultExportTimeout,
		},
		RetryConfig: NewRetryConfig(),
	}
}

// GetStepTimeout returns the timeout for a specific step
func (c *Config) GetStepTimeout(stepID string) time.Duration {
	if timeout, ok := c.StepTimeouts[stepID]; ok && timeout > 0 {
		return timeout
	}
	return DefaultStepTimeout
}

// SetStepTimeout sets the timeout for a specific step
func (c *Config) SetStepTimeout(stepID string, timeout time.Duration) {
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[stepID] = timeout
}

// retryDelay returns the wait before attempt+1
func (c RetryConfig) retryDelay(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * c.Multiplier)
	}
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}
