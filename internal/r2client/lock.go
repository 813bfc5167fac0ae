package r2client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// lockRecord is the JSON body of a lock object.
type lockRecord struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Lock is a lease stored as a single object. Creation uses If-None-Match and
// every later write uses If-Match, so at most one holder wins each race.
// An expired lease may be taken over by anyone.
type Lock struct {
	client *Client
	key    string
	ttl    time.Duration
	owner  string
	etag   string
	now    func() time.Time
}

// NewLock creates a lock on key with a fresh owner id.
func NewLock(client *Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		ttl:    ttl,
		owner:  uuid.NewString(),
		now:    time.Now,
	}
}

// Owner returns this holder's id.
func (l *Lock) Owner() string {
	return l.owner
}

// Acquire takes the lock. It returns false without error when another
// holder has a lease that has not yet expired.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	data, err := l.record()
	if err != nil {
		return false, err
	}

	created, etag, err := l.client.putIfAbsent(ctx, l.key, data)
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if created {
		l.etag = etag
		return true, nil
	}

	current, etag, err := l.client.readSmall(ctx, l.key)
	if errors.Is(err, ErrNotFound) {
		// Released between our two calls; try once more from scratch.
		created, etag, err = l.client.putIfAbsent(ctx, l.key, data)
		if err != nil {
			return false, fmt.Errorf("acquire lock: %w", err)
		}
		if created {
			l.etag = etag
		}
		return created, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	var held lockRecord
	if json.Unmarshal(current, &held) == nil && l.now().Before(held.ExpiresAt) {
		return false, nil
	}

	taken, newETag, err := l.client.putIfMatch(ctx, l.key, data, etag)
	if err != nil {
		return false, fmt.Errorf("acquire lock: take over: %w", err)
	}
	if taken {
		l.etag = newETag
	}
	return taken, nil
}

// Renew extends the lease. It returns false when the lock is no longer ours.
func (l *Lock) Renew(ctx context.Context) (bool, error) {
	if l.etag == "" {
		return false, nil
	}

	data, err := l.record()
	if err != nil {
		return false, err
	}

	ok, etag, err := l.client.putIfMatch(ctx, l.key, data, l.etag)
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	if !ok {
		l.etag = ""
		return false, nil
	}
	l.etag = etag
	return true, nil
}

// Release deletes the lock object if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	data, _, err := l.client.readSmall(ctx, l.key)
	if errors.Is(err, ErrNotFound) {
		l.etag = ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	var held lockRecord
	if json.Unmarshal(data, &held) == nil && held.Owner != l.owner {
		l.etag = ""
		return nil
	}

	l.etag = ""
	return l.client.delete(ctx, l.key)
}

// KeepAlive renews the lease every interval until ctx ends. lost is called
// once if a renewal reports the lock was taken over.
func (l *Lock) KeepAlive(ctx context.Context, interval time.Duration, lost func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.Renew(ctx)
			if err != nil {
				continue
			}
			if !ok {
				if lost != nil {
					lost()
				}
				return
			}
		}
	}
}

func (l *Lock) record() ([]byte, error) {
	data, err := json.Marshal(lockRecord{Owner: l.owner, ExpiresAt: l.now().Add(l.ttl)})
	if err != nil {
		return nil, fmt.Errorf("encode lock: %w", err)
	}
	return data, nil
}
