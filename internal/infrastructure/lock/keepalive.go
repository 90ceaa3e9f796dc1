package lock

import (
	"context"
	"sync"
	"time"
)

// keepAlive calls refresh every ttl/3 until stop is called or a refresh fails.
// stop waits for the refresher to exit.
func keepAlive(ttl time.Duration, refresh func(context.Context) error) (stop func()) {
	interval := ttl / 3
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := refresh(ctx); err != nil {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
