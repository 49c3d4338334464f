// Package udptrans wires package locator's address algebra to real UDP
// sockets, per spec.md §4.G: multicast join across local interfaces,
// send-path fan-out (one send per destination per source interface),
// and receive that reports each datagram's sender locator; receive
// demux and source filtering are left to the caller. Grounded on
// original_source/dds/src/trans/ip/ri_udp.c for the socket lifecycle
// (create send socket, bind receive socket, join groups per local
// interface) and built on golang.org/x/net/ipv4 and golang.org/x/net/ipv6
// for multicast group membership — the ecosystem's standard way to drive
// IP_ADD_MEMBERSHIP/IPV6_JOIN_GROUP and per-packet control messages in
// Go, instead of a hand-rolled golang.org/x/sys/unix.Sendmsg loop.
package udptrans

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/qeo-io/ddscore/locator"
	"github.com/qeo-io/ddscore/logx"
	"github.com/qeo-io/ddscore/ticks"
	"github.com/qeo-io/ddscore/timer"
)

// ErrNoInterface is returned when no usable multicast-capable interface
// is present, corresponding to the original's ENODEV "wait for
// interface" retry condition.
var ErrNoInterface = errors.New("udptrans: no multicast-capable interface available")

// Conn is one bound UDP transport endpoint, for either KindUDPv4 or
// KindUDPv6.
type Conn struct {
	kind locator.Kind
	conn *net.UDPConn
	p4   *ipv4.PacketConn
	p6   *ipv6.PacketConn

	mu     sync.Mutex
	groups map[string][]net.Interface // multicast group -> joined interfaces

	retry *timer.Entry
}

// Listen binds a UDP socket for kind on port (INADDR_ANY / in6addr_any),
// ready for multicast joins and datagram I/O.
func Listen(kind locator.Kind, port uint32) (*Conn, error) {
	network := "udp4"
	if kind == locator.KindUDPv6 {
		network = "udp6"
	}
	pc, err := net.ListenUDP(network, &net.UDPAddr{Port: int(port)})
	if err != nil {
		return nil, err
	}
	c := &Conn{kind: kind, conn: pc, groups: make(map[string][]net.Interface)}
	if kind == locator.KindUDPv4 {
		c.p4 = ipv4.NewPacketConn(pc)
	} else {
		c.p6 = ipv6.NewPacketConn(pc)
	}
	return c, nil
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// JoinMulticast joins group on every interface in ifaces that supports
// multicast, matching the original's "join on all local interfaces"
// posture (one DDS process typically has more than one active NIC).
// It succeeds if at least one interface joins; per-interface failures
// are collected but non-fatal, since a down interface should not block
// the others.
func (c *Conn) JoinMulticast(group net.IP, ifaces []net.Interface) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var joined []net.Interface
	var lastErr error
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagUp == 0 {
			continue
		}
		if err := c.joinOn(group, ifi); err != nil {
			lastErr = err
			continue
		}
		joined = append(joined, ifi)
	}
	if len(joined) == 0 {
		if lastErr != nil {
			return lastErr
		}
		return ErrNoInterface
	}
	c.groups[group.String()] = joined
	return nil
}

func (c *Conn) joinOn(group net.IP, ifi net.Interface) error {
	if c.kind == locator.KindUDPv4 {
		return c.p4.JoinGroup(&ifi, &net.UDPAddr{IP: group})
	}
	return c.p6.JoinGroup(&ifi, &net.UDPAddr{IP: group})
}

// LeaveMulticast leaves group on every interface it was previously
// joined on.
func (c *Conn) LeaveMulticast(group net.IP) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ifaces, ok := c.groups[group.String()]
	if !ok {
		return nil
	}
	var firstErr error
	for _, ifi := range ifaces {
		var err error
		if c.kind == locator.KindUDPv4 {
			err = c.p4.LeaveGroup(&ifi, &net.UDPAddr{IP: group})
		} else {
			err = c.p6.LeaveGroup(&ifi, &net.UDPAddr{IP: group})
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	delete(c.groups, group.String())
	return firstErr
}

// SetMulticastTTL sets the outgoing multicast TTL/hop-limit.
func (c *Conn) SetMulticastTTL(ttl int) error {
	if c.kind == locator.KindUDPv4 {
		return c.p4.SetMulticastTTL(ttl)
	}
	return c.p6.SetMulticastHopLimit(ttl)
}

// Send transmits data to dst, replicating across every interface in
// srcIfaces when dst is multicast (spec.md's "source-interface
// replication"), or sending once via the default route for unicast.
func (c *Conn) Send(data []byte, dst locator.Locator, srcIfaces []net.Interface) error {
	addr := &net.UDPAddr{IP: dst.IP(), Port: int(dst.Port)}
	if dst.Flags&locator.FlagMulticast == 0 || len(srcIfaces) == 0 {
		_, err := c.conn.WriteToUDP(data, addr)
		return err
	}
	var firstErr error
	for _, ifi := range srcIfaces {
		if err := c.setMulticastIface(ifi); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, err := c.conn.WriteToUDP(data, addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Conn) setMulticastIface(ifi net.Interface) error {
	if c.kind == locator.KindUDPv4 {
		return c.p4.SetMulticastInterface(&ifi)
	}
	return c.p6.SetMulticastInterface(&ifi)
}

// Receive reads one datagram, returning the sender's Locator for
// source-filter gating by the caller.
func (c *Conn) Receive(buf []byte) (n int, src locator.Locator, err error) {
	nRead, addr, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, locator.Locator{}, err
	}
	src = locator.Locator{Kind: c.kind, Address: locator.FromIP(addr.IP), Port: uint32(addr.Port)}
	return nRead, src, nil
}

// RetryJoinOnENODEV schedules a retry of JoinMulticast through mgr after
// delay ticks, matching spec.md's "wait for interface" flag: rather than
// a bespoke retry loop, the retry is just another timer.Manager entry.
func (c *Conn) RetryJoinOnENODEV(ctx context.Context, mgr *timer.Manager, log *logx.Manager, delay ticks.Tick, group net.IP, listIfaces func() []net.Interface) {
	if c.retry == nil {
		c.retry = mgr.Alloc()
	}
	var attempt func(any)
	attempt = func(any) {
		if ctx.Err() != nil {
			return
		}
		if err := c.JoinMulticast(group, listIfaces()); err != nil {
			if log != nil {
				log.Warning("UDP", "multicast join retry for %s failed: %v", group, err)
			}
			_ = mgr.Start(c.retry, delay, nil, attempt)
		}
	}
	_ = mgr.Start(c.retry, delay, nil, attempt)
}
