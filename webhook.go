package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// notifyWebhook pings the dead man's switch after a successful run.
// Failures are logged only, the mirror itself already succeeded.
func notifyWebhook(ctx context.Context, log *slog.Logger, url string) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Error("unable to create webhook request", "err", err)
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Error("unable to ping webhook", "err", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		log.Error("webhook ping rejected", "status", resp.Status)
		return
	}
	log.Info("webhook pinged")
}
