package hal

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ErrFenceTimeout is returned by WaitFD when the fence does not signal
// within the given timeout.
var ErrFenceTimeout = errors.New("hal: fence wait timed out")

// WaitFD blocks until the fence file descriptor becomes readable, meaning
// the producer has finished writing the buffer it guards. A negative
// timeout waits forever.
func WaitFD(fd int, timeout time.Duration) error {
	if fd < 0 {
		return unix.EINVAL
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if n > 0 {
			if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
				return unix.EINVAL
			}
			return nil
		}
		if n == 0 {
			return ErrFenceTimeout
		}
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		return err
	}
}

// FenceRef holds a single owned fence file descriptor, replacing it safely
// as new fences arrive. The zero value is empty; initialize with NewFenceRef.
type FenceRef struct {
	fd int
}

// NewFenceRef returns an empty fence reference.
func NewFenceRef() *FenceRef {
	return &FenceRef{fd: -1}
}

// FD returns the held descriptor, or -1.
func (f *FenceRef) FD() int { return f.fd }

// Update dups fd into the reference, closing any previously held
// descriptor. Passing a negative fd is equivalent to Clear.
func (f *FenceRef) Update(fd int) error {
	f.Clear()
	if fd < 0 {
		return nil
	}
	dup, err := unix.Dup(fd)
	if err != nil {
		return err
	}
	f.fd = dup
	return nil
}

// Adopt takes ownership of fd without duplicating it, closing any
// previously held descriptor.
func (f *FenceRef) Adopt(fd int) {
	f.Clear()
	if fd >= 0 {
		f.fd = fd
	}
}

// Clear closes and drops the held descriptor, if any.
func (f *FenceRef) Clear() {
	if f.fd >= 0 {
		unix.Close(f.fd)
		f.fd = -1
	}
}
