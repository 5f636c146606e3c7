package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"time"
)

// ServersWatch is called with each new version of servers.yaml. OnError, when
// set, receives files that changed but failed to load; the last good version
// stays in effect.
type ServersWatch struct {
	OnUpdate func(*ServersConfig)
	OnError  func(error)
}

// WatchServers loads path once, reports it through w.OnUpdate and then polls
// every interval until ctx is done. A reload only happens when the file
// content changed, so touching the file is a no-op.
func WatchServers(ctx context.Context, path string, interval time.Duration, w ServersWatch) error {
	if path == "" {
		path = "configs/servers.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	sum, err := fileSum(path)
	if err != nil {
		return err
	}
	cfg, err := LoadServersConfig(path)
	if err != nil {
		return err
	}
	if w.OnUpdate != nil {
		w.OnUpdate(cfg)
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			next, err := fileSum(path)
			if err != nil || bytes.Equal(next, sum) {
				continue
			}
			cfg, err := LoadServersConfig(path)
			if err != nil {
				if w.OnError != nil {
					w.OnError(err)
				}
				// Remember the broken version so it is reported once.
				sum = next
				continue
			}
			sum = next
			if w.OnUpdate != nil {
				w.OnUpdate(cfg)
			}
		}
	}()
	return nil
}

func fileSum(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(data)
	return h[:], nil
}
