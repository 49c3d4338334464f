package dispatch

import (
	"os"

	"golang.org/x/sys/unix"
)

// wakePipe is the self-pipe spec.md §4.H describes a foreign thread
// writes one byte to when it needs the worker to wake from poll; the
// worker registers its read end in its sockset.Set like any other
// descriptor. Grounded on the posture of the teacher's wakeup_linux.go
// (an eventfd serves the same purpose there); a plain os.Pipe is used
// here instead of eventfd so the same mechanism serves the linux and
// darwin sockset backends without a build-tagged wake primitive of its
// own. It relies on golang.org/x/sys/unix, so package dispatch does not
// build for windows and has no event-object wakeup.
type wakePipe struct {
	r, w *os.File
}

func newWakePipe() (*wakePipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	return &wakePipe{r: r, w: w}, nil
}

// Signal wakes the worker if it is parked in Poll. Writing to a full
// pipe buffer is harmless (EAGAIN is ignored): the worker only needs to
// observe at least one byte to wake, not one byte per Signal call.
func (p *wakePipe) Signal() {
	_, _ = p.w.Write([]byte{1})
}

// Drain empties the read end. Called from the worker goroutine once
// sockset reports the read fd ready.
func (p *wakePipe) Drain() {
	var buf [64]byte
	for {
		n, err := p.r.Read(buf[:])
		if n == 0 || err != nil {
			return
		}
	}
}

func (p *wakePipe) Close() error {
	_ = p.w.Close()
	return p.r.Close()
}

func (p *wakePipe) readFd() int { return int(p.r.Fd()) }
