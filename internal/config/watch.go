package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchRestaurant reloads restaurant.yaml on change and calls onUpdate with the latest config.
// It performs an initial load before entering the watch loop. Invalid edits are logged
// and skipped; the previous config stays in effect.
func WatchRestaurant(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger, onUpdate func(*RestaurantConfig)) error {
	if path == "" {
		path = "configs/restaurant.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := logger.With().Str("component", "config_watch").Str("path", path).Logger()

	cfg, err := LoadRestaurantConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := LoadRestaurantConfig(path)
				if err != nil {
					log.Warn().Err(err).Msg("restaurant config reload rejected")
					lastMod = info.ModTime()
					continue
				}
				lastMod = info.ModTime()
				log.Info().Str("summary", cfg.String()).Msg("restaurant config reloaded")
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
