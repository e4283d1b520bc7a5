// Package semaphore provides a counting semaphore that limits the number of running peer sessions.
package semaphore

// Semaphore allows at most n holders at a time.
type Semaphore struct {
	c chan struct{}
}

// New returns a Semaphore with n slots.
func New(n int) *Semaphore {
	return &Semaphore{
		c: make(chan struct{}, n),
	}
}

// TryAcquire takes a slot if one is free and reports whether it did.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.c <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot taken by TryAcquire.
func (s *Semaphore) Release() {
	<-s.c
}

// Len returns the number of slots in use.
func (s *Semaphore) Len() int {
	return len(s.c)
}

// Free returns the number of available slots.
func (s *Semaphore) Free() int {
	return cap(s.c) - len(s.c)
}
