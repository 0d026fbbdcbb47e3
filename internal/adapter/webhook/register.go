package webhook

import (
	"time"

	"github.com/Strob0t/DealWatch/internal/port/notifier"
)

func init() {
	notifier.Register(channelName, func(config map[string]string) (notifier.Notifier, error) {
		cfg := Config{
			UserAgent:     config["user_agent"],
			SigningSecret: config["signing_secret"],
		}
		if t := config["timeout"]; t != "" {
			d, err := time.ParseDuration(t)
			if err != nil {
				return nil, err
			}
			cfg.Timeout = d
		}
		return NewNotifier(cfg), nil
	})
}
