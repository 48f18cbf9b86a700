// internal/workers/application/send-notification/config.go
package sendnotification

import (
	"time"

	"registration-workers/internal/common/config"
)

type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
	SMSSenderID  string
	SendRate     float64
	Timeout      time.Duration
}

func LoadConfig(wcfg config.WorkerConfig, ncfg config.NotificationConfig) *Config {
	timeout := 30 * time.Second
	if wcfg.Timeout > 0 {
		timeout = config.GetDuration(wcfg.Timeout)
	}
	return &Config{
		EmailEnabled: ncfg.Email.Enabled,
		SMSEnabled:   ncfg.SMS.Enabled,
		FromEmail:    ncfg.Email.FromEmail,
		SMSSenderID:  ncfg.SMS.SenderID,
		SendRate:     ncfg.SendRate,
		Timeout:      timeout,
	}
}
