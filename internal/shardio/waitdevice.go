package shardio

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/ectar-archive/ectar"
	"github.com/s-urbaniak/uevent"
)

// WaitForDevice blocks until path exists, subscribing to kernel block-device
// uevents rather than busy-polling when possible. It falls back to polling
// if the uevent netlink socket cannot be opened (non-Linux, or insufficient
// privilege) since tape-device-backed archives are not exclusive to systems
// where uevent subscription is available.
func WaitForDevice(ctx context.Context, path string, timeout time.Duration) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	deadline := time.Now().Add(timeout)

	r, err := uevent.NewReader()
	if err != nil {
		return pollForDevice(ctx, path, deadline)
	}
	defer r.Close()
	dec := uevent.NewDecoder(r)

	events := make(chan struct{}, 1)
	go func() {
		for {
			ev, err := dec.Decode()
			if err != nil {
				return
			}
			if ev.Subsystem != "block" {
				continue
			}
			devname, ok := ev.Vars["DEVNAME"]
			if !ok {
				continue
			}
			if strings.HasSuffix(path, devname) && (ev.Action == "add" || ev.Action == "change") {
				select {
				case events <- struct{}{}:
				default:
				}
			}
		}
	}()

	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return &ectar.IOError{Why: "waiting for tape device", Err: ctx.Err()}
		case <-events:
			continue
		case <-time.After(time.Until(deadline)):
			return &ectar.FileNotFoundError{Path: path}
		}
	}
}

func pollForDevice(ctx context.Context, path string, deadline time.Time) error {
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return &ectar.IOError{Why: "waiting for tape device", Err: ctx.Err()}
		case <-time.After(50 * time.Millisecond):
		}
	}
	return &ectar.FileNotFoundError{Path: path}
}
