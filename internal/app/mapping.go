package app

import (
	"fmt"
	"time"

	"slotwatch/internal/config"
	"slotwatch/internal/dispatch"
	"slotwatch/internal/fetch"
	"slotwatch/internal/pipeline"
	"slotwatch/internal/schedule"
	"slotwatch/internal/slot"
	"slotwatch/internal/storage"
	kit "slotwatch/internal/transport"
	"slotwatch/internal/transport/line"
	"slotwatch/internal/transport/natspub"
	"slotwatch/internal/transport/telegram"
	logx "slotwatch/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapFetchConfig(cfg *config.Config) (fetch.Config, error) {
	timeout, err := config.DurationOr("source.timeout", cfg.Source.Timeout, 20*time.Second)
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		Timeout:   timeout,
		MaxBytes:  cfg.Source.MaxBytes,
		UserAgent: cfg.Source.UserAgent,
	}, nil
}

func mapExtractOptions(cfg *config.Config) slot.ExtractOptions {
	return slot.ExtractOptions{
		TableSelector: cfg.Source.TableSelector,
		ClosedMarker:  cfg.Source.ClosedMarker,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.DurationOr("snapshot.busy_timeout", cfg.Snapshot.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: cfg.Snapshot.Driver, Path: cfg.Snapshot.Path, BusyTimeout: busy}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	timeout, err := config.DurationOr("notify.timeout", cfg.Notify.Timeout, 20*time.Second)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		MaxItems:    cfg.Notify.MaxItems,
		RatePerSec:  cfg.Notify.RatePerSec,
		CallTimeout: timeout,
	}, nil
}

func mapPipelineConfig(cfg *config.Config, dryRun bool) pipeline.Config {
	return pipeline.Config{
		URL:        cfg.Source.URL,
		Header:     cfg.Notify.Header,
		BatchLimit: cfg.Notify.MaxChars,
		DryRun:     dryRun,
	}
}

func mapScheduleConfig(cfg *config.Config) (schedule.Config, error) {
	timeout, err := config.DurationOr("schedule.run_timeout", cfg.Schedule.RunTimeout, 0)
	if err != nil {
		return schedule.Config{}, err
	}
	return schedule.Config{
		Spec:       cfg.Schedule.Spec,
		Timezone:   cfg.Schedule.Timezone,
		RunOnStart: cfg.Schedule.RunOnStart,
		RunTimeout: timeout,
	}, nil
}

// newPusher builds the configured transport. Missing credentials are not an
// error here; the pusher reports them through Ready when something is due.
func newPusher(cfg *config.Config, log logx.Logger) (kit.Pusher, error) {
	timeout, err := config.DurationOr("notify.timeout", cfg.Notify.Timeout, 20*time.Second)
	if err != nil {
		return nil, err
	}
	n := cfg.Notify
	switch n.Transport {
	case "", "line":
		return line.New(line.Config{Token: n.Line.Token, Endpoint: n.Line.Endpoint, Timeout: timeout}), nil
	case "telegram":
		return telegram.New(telegram.Config{
			Token:    n.Telegram.Token,
			ChatID:   n.Telegram.ChatID,
			ThreadID: n.Telegram.ThreadID,
			APIURL:   n.Telegram.APIURL,
			Timeout:  timeout,
		}), nil
	case "nats":
		return natspub.New(natspub.Config{URL: n.NATS.URL, Subject: n.NATS.Subject, Timeout: timeout}), nil
	case "log":
		return &kit.LogPusher{Log: log.Named("transport")}, nil
	default:
		return nil, fmt.Errorf("unknown notify.transport: %s", n.Transport)
	}
}
