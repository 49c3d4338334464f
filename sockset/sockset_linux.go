//go:build linux

package sockset

import (
	"golang.org/x/sys/unix"
)

// epollBackend is the Linux poll primitive, grounded on the teacher's
// eventloop.FastPoller
// (_examples/joeycumines-go-utilpkg/eventloop/poller_linux.go):
// epoll_create1 plus a preallocated event buffer, epoll_ctl for
// add/modify/remove.
type epollBackend struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
}

func newBackend() backend { return &epollBackend{epfd: -1} }

func (b *epollBackend) init() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	b.epfd = fd
	return nil
}

func (b *epollBackend) add(fd int, ev Events) error {
	e := unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &e)
}

func (b *epollBackend) modify(fd int, ev Events) error {
	e := unix.EpollEvent{Events: toEpoll(ev), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &e)
}

func (b *epollBackend) remove(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (b *epollBackend) wait(timeoutMs int) ([]waitResult, error) {
	n, err := unix.EpollWait(b.epfd, b.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]waitResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, waitResult{
			fd:     int(b.eventBuf[i].Fd),
			events: fromEpoll(b.eventBuf[i].Events),
		})
	}
	return out, nil
}

func (b *epollBackend) close() error {
	if b.epfd < 0 {
		return nil
	}
	fd := b.epfd
	b.epfd = -1
	return unix.Close(fd)
}

func toEpoll(ev Events) uint32 {
	var e uint32
	if ev&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if ev&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpoll(e uint32) Events {
	var ev Events
	if e&unix.EPOLLIN != 0 {
		ev |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		ev |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		ev |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		ev |= EventHangup
	}
	return ev
}
