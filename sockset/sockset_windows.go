//go:build windows

package sockset

import (
	"errors"

	"golang.org/x/sys/windows"
)

// maxWaitObjects mirrors the Win32 MAXIMUM_WAIT_OBJECTS ceiling spec.md's
// Windows variant calls out explicitly.
const maxWaitObjects = 64

// winEntry pairs a socket with the auto-reset event WSAEventSelect signals.
type winEntry struct {
	fd    int
	event windows.Handle
}

// wsaBackend replaces poll() with WaitForMultipleObjects over auto-reset
// events created by WSAEventSelect per socket, per spec.md's Windows
// variant. It maps FD_READ/FD_ACCEPT, FD_WRITE/FD_CONNECT and FD_CLOSE
// back onto the same abstract Events set the poll variant uses; FD_OOB
// is neither selected nor mapped.
type wsaBackend struct {
	entries []winEntry
}

func newBackend() backend { return &wsaBackend{} }

func (b *wsaBackend) init() error { return nil }

func toWSAEvents(ev Events) uint32 {
	var m uint32
	if ev&EventRead != 0 {
		m |= windows.FD_READ | windows.FD_ACCEPT
	}
	if ev&EventWrite != 0 {
		m |= windows.FD_WRITE | windows.FD_CONNECT
	}
	m |= windows.FD_CLOSE
	return m
}

func (b *wsaBackend) add(fd int, ev Events) error {
	if len(b.entries) >= maxWaitObjects {
		return errors.New("sockset: MAXIMUM_WAIT_OBJECTS exceeded")
	}
	h, err := windows.WSACreateEvent()
	if err != nil {
		return err
	}
	if err := windows.WSAEventSelect(windows.Handle(fd), h, toWSAEvents(ev)); err != nil {
		_ = windows.WSACloseEvent(h)
		return err
	}
	b.entries = append(b.entries, winEntry{fd: fd, event: h})
	return nil
}

func (b *wsaBackend) modify(fd int, ev Events) error {
	for _, e := range b.entries {
		if e.fd == fd {
			return windows.WSAEventSelect(windows.Handle(fd), e.event, toWSAEvents(ev))
		}
	}
	return ErrNotRegistered
}

func (b *wsaBackend) remove(fd int) error {
	for i, e := range b.entries {
		if e.fd == fd {
			_ = windows.WSAEventSelect(windows.Handle(fd), e.event, 0)
			_ = windows.WSACloseEvent(e.event)
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotRegistered
}

func (b *wsaBackend) wait(timeoutMs int) ([]waitResult, error) {
	if len(b.entries) == 0 {
		return nil, nil
	}
	handles := make([]windows.Handle, len(b.entries))
	for i, e := range b.entries {
		handles[i] = e.event
	}
	timeout := uint32(windows.INFINITE)
	if timeoutMs >= 0 {
		timeout = uint32(timeoutMs)
	}
	idx, err := windows.WaitForMultipleObjects(handles, false, timeout)
	if err != nil {
		return nil, err
	}
	if idx >= uint32(len(b.entries)) {
		return nil, nil // timeout or abandoned
	}
	entry := b.entries[idx]
	var ne windows.WSANetworkEvents
	if err := windows.WSAEnumNetworkEvents(windows.Handle(entry.fd), entry.event, &ne); err != nil {
		return nil, err
	}
	var ev Events
	if ne.NetworkEvents&(windows.FD_READ|windows.FD_ACCEPT) != 0 {
		ev |= EventRead
	}
	if ne.NetworkEvents&(windows.FD_WRITE|windows.FD_CONNECT) != 0 {
		ev |= EventWrite
	}
	if ne.NetworkEvents&windows.FD_CLOSE != 0 {
		ev |= EventHangup
	}
	return []waitResult{{fd: entry.fd, events: ev}}, nil
}

func (b *wsaBackend) close() error {
	for _, e := range b.entries {
		_ = windows.WSACloseEvent(e.event)
	}
	b.entries = nil
	return nil
}
