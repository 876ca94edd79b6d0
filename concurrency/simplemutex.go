package concurrency

import "context"

// SimpleMutex is a mutex built on a buffered channel. Acquiring it can be attempted
// without blocking or abandoned when a context is done.
type SimpleMutex chan struct{}

// NewSimpleMutex returns an unlocked mutex.
func NewSimpleMutex() SimpleMutex {
	return make(SimpleMutex, 1)
}

// Lock blocks until the mutex is acquired.
func (s SimpleMutex) Lock() {
	s <- struct{}{}
}

// LockContext blocks until the mutex is acquired or ctx is done. The mutex is not held
// when an error is returned.
func (s SimpleMutex) LockContext(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock acquires the mutex only if it's free.
func (s SimpleMutex) TryLock() bool {
	select {
	case s <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock releases the mutex. Unlocking a free mutex blocks forever.
func (s SimpleMutex) Unlock() {
	<-s
}

// IsLocked is a snapshot: the state may change right after the call.
func (s SimpleMutex) IsLocked() bool {
	return len(s) > 0
}
