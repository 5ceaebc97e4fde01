package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// defaultLockTimeout covers a full interactive login held by another process.
const defaultLockTimeout = DefaultCallbackTimeout + 30*time.Second

// acquireLoginLock takes an exclusive file lock at path. The returned
// function releases it.
func acquireLoginLock(ctx context.Context, path string, timeout time.Duration) (func(), error) {
	fileLock := flock.New(path)
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire login lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to acquire login lock: timeout after %v", timeout)
	}
	return func() { _ = fileLock.Unlock() }, nil
}
