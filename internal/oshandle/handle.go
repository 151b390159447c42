// Package oshandle provides a move-only, single-owner wrapper around a
// native OS resource handle (a Windows HANDLE, a pipe instance, a file
// descriptor). It guarantees every successful acquisition has a matching
// release on every exit path, mirroring the RAII discipline the original
// extension relies on for its HANDLE lifetime.
package oshandle

import "sync"

// Handle is an opaque OS resource identifier.
type Handle uintptr

// InvalidHandle is the sentinel value. It is the zero Handle, so a zero
// Owner holds it.
const InvalidHandle Handle = 0

// CloseFunc releases the OS resource identified by h.
type CloseFunc func(h Handle) error

// Owner is a single-owner wrapper around a Handle. The zero Owner holds
// InvalidHandle and closing it is a no-op. Owner must not be copied after
// first use — pass *Owner, never Owner, the same discipline sync.Mutex
// documents for itself.
type Owner struct {
	mu     sync.Mutex
	handle Handle
	closer CloseFunc
}

// Adopt takes ownership of h, using closer to release it on Close. A closer
// of nil makes Close a pure bookkeeping operation (useful in tests).
func Adopt(h Handle, closer CloseFunc) *Owner {
	return &Owner{handle: h, closer: closer}
}

// Get returns the current handle without transferring ownership.
func (o *Owner) Get() Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handle
}

// Valid reports whether the owned handle is not the invalid sentinel.
func (o *Owner) Valid() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handle != InvalidHandle
}

// Release hands the handle back to the caller without closing it, leaving
// the Owner holding InvalidHandle. Use when ownership transfers elsewhere.
func (o *Owner) Release() Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := o.handle
	o.handle = InvalidHandle
	return h
}

// Reset closes the currently-owned handle (if valid) and adopts h.
func (o *Owner) Reset(h Handle, closer CloseFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.closeLocked()
	o.handle = h
	o.closer = closer
	return err
}

// Close releases the owned handle. Closing an already-invalid handle, or
// calling Close more than once, is a no-op that returns nil.
func (o *Owner) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closeLocked()
}

func (o *Owner) closeLocked() error {
	if o.handle == InvalidHandle {
		return nil
	}
	h := o.handle
	closer := o.closer
	o.handle = InvalidHandle
	o.closer = nil
	if closer == nil {
		return nil
	}
	return closer(h)
}

// Guard acquires a resource via acquire, and ensures release runs exactly
// once when the returned func is invoked — a scoped-acquisition helper
// for anything wrapping a raw handle in a defer, the same shape the
// output capture sink uses for callback install/restore.
func Guard(acquire func() (*Owner, error)) (*Owner, func(), error) {
	owner, err := acquire()
	if err != nil {
		return nil, func() {}, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() { _ = owner.Close() })
	}
	return owner, release, nil
}
