package email

import (
	"strconv"

	"github.com/Strob0t/DealWatch/internal/port/notifier"
)

func init() {
	notifier.Register(channelName, func(config map[string]string) (notifier.Notifier, error) {
		port := 587
		if p := config["port"]; p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				return nil, err
			}
			port = n
		}
		return NewNotifier(SMTPConfig{
			Host:     config["host"],
			Port:     port,
			From:     config["from"],
			Username: config["username"],
			Password: config["password"],
		}), nil
	})
}
