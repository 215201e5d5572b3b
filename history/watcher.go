package history

import (
	"context"
	"os"
	"time"
)

// DefaultWatchInterval is how often the watcher stats the log file.
const DefaultWatchInterval = 500 * time.Millisecond

// DefaultWriteCooldown is the window after an in-process append during which
// file changes are attributed to ourselves and ignored. This prevents a
// self-triggered feedback loop between appends and the relay sync.
const DefaultWriteCooldown = 2 * time.Second

// WatchOptions configures Watch.
type WatchOptions struct {
	Interval time.Duration
	Cooldown time.Duration
}

// Watch polls the log file for external modifications and invokes onChange
// for every change that lands outside the self-write cooldown window. It
// blocks until ctx is cancelled, so run it in its own goroutine.
func (l *Log) Watch(ctx context.Context, onChange func(), optFns ...func(o *WatchOptions)) {
	opts := WatchOptions{Interval: DefaultWatchInterval, Cooldown: DefaultWriteCooldown}
	for _, fn := range optFns {
		fn(&opts)
	}

	var lastMod time.Time
	if info, err := os.Stat(l.path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, err := os.Stat(l.path)
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if !mod.After(lastMod) {
			continue
		}
		lastMod = mod

		if time.Since(l.lastWriteTime()) < opts.Cooldown {
			continue
		}
		onChange()
	}
}
