package main

// Notification channel blank imports. Each import registers a channel
// factory with the notifier registry. Add new channels here.

import (
	_ "github.com/Strob0t/DealWatch/internal/adapter/email"
	_ "github.com/Strob0t/DealWatch/internal/adapter/webhook"
)
