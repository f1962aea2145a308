// Package systemd reports service state to systemd through sd_notify.
// Every call is a no-op when the process is not run by systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/pkg/logx"
)

// Ready tells systemd startup finished (Type=notify units).
func Ready(log logx.Logger) {
	notify(log, daemon.SdNotifyReady)
}

func Stopping(log logx.Logger) {
	notify(log, daemon.SdNotifyStopping)
}

// Reloading marks a config reload; call Ready when it completes.
func Reloading(log logx.Logger) {
	notify(log, daemon.SdNotifyReloading)
}

func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// Watchdog pings systemd at half the configured WatchdogSec while healthy
// returns nil. It returns immediately when the watchdog is not enabled.
func Watchdog(ctx context.Context, log logx.Logger, healthy func(context.Context) error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	tick := time.NewTicker(interval / 2)
	defer tick.Stop()
	log.Info("systemd watchdog enabled", logx.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if healthy != nil {
				hctx, cancel := context.WithTimeout(ctx, interval/4)
				err := healthy(hctx)
				cancel()
				if err != nil {
					// a missed ping lets systemd restart the unit
					log.Warn("health check failed, skipping watchdog ping", logx.Err(err))
					continue
				}
			}
			notify(log, daemon.SdNotifyWatchdog)
		}
	}
}
