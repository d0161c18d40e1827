package events

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/backoff/v2"
	"go.etcd.io/bbolt"
)

// Open opens the journal database at path.
// bbolt allows only one process to hold the database file, so Open
// retries for a while when the file is locked by a live writer(e.g.
// viewing a journal while the instrumented process is still running).
func Open(ctx context.Context, path string) (*bbolt.DB, error) {
	c := backoff.NewConstantPolicy(
		backoff.WithInterval(time.Millisecond*500),
		backoff.WithMaxRetries(10),
	).Start(ctx)

	var lastErr error
	for {
		select {
		case <-c.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return nil, fmt.Errorf("events: failed to open %q: %w", path, lastErr)
		case <-c.Next():
			db, err := bbolt.Open(path, 0644, &bbolt.Options{
				Timeout: time.Millisecond * 50,
			})
			if err == nil {
				return db, nil
			}
			lastErr = err
		}
	}
}
