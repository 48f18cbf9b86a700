// internal/workers/application/check-submission-readiness/config.go
package checksubmissionreadiness

import (
	"time"

	"registration-workers/internal/common/config"
)

type Config struct {
	RequiredDocuments []string
	MinPhotos         int
	Timeout           time.Duration
}

func LoadConfig(wcfg config.WorkerConfig, flow config.WorkflowConfig) *Config {
	timeout := 30 * time.Second
	if wcfg.Timeout > 0 {
		timeout = config.GetDuration(wcfg.Timeout)
	}
	return &Config{
		RequiredDocuments: flow.RequiredDocuments,
		MinPhotos:         flow.MinPhotos,
		Timeout:           timeout,
	}
}
