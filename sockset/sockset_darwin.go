//go:build darwin

package sockset

import (
	"golang.org/x/sys/unix"
)

// kqueueBackend is the Darwin/BSD poll primitive, grounded on the
// teacher's eventloop.FastPoller darwin variant
// (_examples/joeycumines-go-utilpkg/eventloop/poller_darwin.go).
type kqueueBackend struct {
	kq       int
	eventBuf [256]unix.Kevent_t
	// registered tracks each fd's current interest mask so modify can
	// delete-then-add filters that changed, since kqueue has separate
	// read/write filters rather than a single combined mask.
	registered map[int]Events
}

func newBackend() backend {
	return &kqueueBackend{kq: -1, registered: make(map[int]Events)}
}

func (b *kqueueBackend) init() error {
	fd, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(fd)
	b.kq = fd
	return nil
}

func (b *kqueueBackend) changeFilters(fd int, ev Events, deleteFirst bool) error {
	var changes []unix.Kevent_t
	if deleteFirst {
		changes = append(changes,
			unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
			unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
		)
	}
	if ev&EventRead != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD})
	}
	if ev&EventWrite != 0 {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD})
	}
	if len(changes) == 0 {
		return nil
	}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	return err
}

func (b *kqueueBackend) add(fd int, ev Events) error {
	b.registered[fd] = ev
	return b.changeFilters(fd, ev, false)
}

func (b *kqueueBackend) modify(fd int, ev Events) error {
	b.registered[fd] = ev
	return b.changeFilters(fd, ev, true)
}

func (b *kqueueBackend) remove(fd int) error {
	delete(b.registered, fd)
	_, err := unix.Kevent(b.kq, []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}, nil, nil)
	return err
}

func (b *kqueueBackend) wait(timeoutMs int) ([]waitResult, error) {
	var tsp *unix.Timespec
	if timeoutMs >= 0 {
		ts := unix.NsecToTimespec(int64(timeoutMs) * 1_000_000)
		tsp = &ts
	}
	n, err := unix.Kevent(b.kq, nil, b.eventBuf[:], tsp)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	merged := make(map[int]Events, n)
	for i := 0; i < n; i++ {
		fd := int(b.eventBuf[i].Ident)
		switch b.eventBuf[i].Filter {
		case unix.EVFILT_READ:
			merged[fd] |= EventRead
		case unix.EVFILT_WRITE:
			merged[fd] |= EventWrite
		}
		if b.eventBuf[i].Flags&unix.EV_EOF != 0 {
			merged[fd] |= EventHangup
		}
		if b.eventBuf[i].Flags&unix.EV_ERROR != 0 {
			merged[fd] |= EventError
		}
	}
	out := make([]waitResult, 0, len(merged))
	for fd, ev := range merged {
		out = append(out, waitResult{fd: fd, events: ev})
	}
	return out, nil
}

func (b *kqueueBackend) close() error {
	if b.kq < 0 {
		return nil
	}
	fd := b.kq
	b.kq = -1
	return unix.Close(fd)
}
