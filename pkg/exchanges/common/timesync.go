package common

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimeSync keeps the local clock offset to an exchange server so signed
// requests land inside recvWindow.
type TimeSync struct {
	getServerTime func(ctx context.Context) (int64, error)
	offset        int64 // ms, server - local
	lastSync      time.Time
	syncInterval  time.Duration
	log           *zap.Logger
	mu            sync.RWMutex
}

// NewTimeSync creates a time synchronization manager.
func NewTimeSync(getServerTime func(ctx context.Context) (int64, error), log *zap.Logger) *TimeSync {
	if log == nil {
		log = zap.NewNop()
	}
	return &TimeSync{
		getServerTime: getServerTime,
		syncInterval:  30 * time.Minute,
		log:           log,
	}
}

// Start syncs once and then periodically until ctx is done.
func (ts *TimeSync) Start(ctx context.Context) {
	if err := ts.Sync(ctx); err != nil {
		ts.log.Warn("initial time sync failed", zap.Error(err))
	}

	go func() {
		ticker := time.NewTicker(ts.syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ts.Sync(ctx); err != nil {
					ts.log.Warn("time sync failed", zap.Error(err))
				}
			}
		}
	}()
}

// Sync measures the server offset once.
func (ts *TimeSync) Sync(ctx context.Context) error {
	localBefore := time.Now().UnixMilli()
	serverTime, err := ts.getServerTime(ctx)
	if err != nil {
		return err
	}
	localAfter := time.Now().UnixMilli()

	// Assume symmetric latency.
	localTime := localBefore + (localAfter-localBefore)/2

	ts.mu.Lock()
	ts.offset = serverTime - localTime
	ts.lastSync = time.Now()
	offset := ts.offset
	ts.mu.Unlock()

	ts.log.Debug("time synced", zap.Int64("offset_ms", offset))
	return nil
}

// Now returns the current time in ms adjusted for the server offset.
func (ts *TimeSync) Now() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return time.Now().UnixMilli() + ts.offset
}

// Offset returns the current offset in ms.
func (ts *TimeSync) Offset() int64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.offset
}
