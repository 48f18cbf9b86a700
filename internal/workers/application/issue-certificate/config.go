// internal/workers/application/issue-certificate/config.go
package issuecertificate

import (
	"time"

	"registration-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig derives the handler deadline from the worker's job timeout.
func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := 30 * time.Second
	if wcfg.Timeout > 0 {
		timeout = config.GetDuration(wcfg.Timeout)
	}
	return &Config{Timeout: timeout}
}
