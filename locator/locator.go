// Package locator implements the pure, syscall-free address algebra of
// spec.md §4.G: the Locator value type, IPv4-mapped IPv6 storage, scope
// classification, well-known port derivation and locator-list refcount
// bookkeeping. It has no dependency on real sockets so it is unit
// testable without a network stack; package udptrans wires it to
// golang.org/x/net/ipv4 and golang.org/x/net/ipv6.
//
// Grounded on original_source/dds/src/trans/ip/ri_udp.c's port
// derivation (rtps_udpv4_enable's RTPS_UDP_PARS) and the locator layout
// spec.md §3 describes.
package locator

import (
	"errors"
	"net"
)

// Kind identifies the transport family of a Locator.
type Kind int

const (
	KindUDPv4 Kind = iota
	KindUDPv6
)

// Scope classifies a Locator's multicast/unicast reach, per spec.md §3.
type Scope int

const (
	ScopeNode Scope = iota
	ScopeLink
	ScopeSite
	ScopeOrg
	ScopeGlobal
)

// Flags marks the meta/user and unicast/multicast axes of a Locator.
type Flags uint8

const (
	FlagMeta Flags = 1 << iota
	FlagData
	FlagUnicast
	FlagMulticast
)

// Locator is the wire endpoint identity spec.md §3 describes:
// {kind, address[16], port, scope_id, scope, flags, handle}. IPv4
// addresses are always stored IPv4-mapped (10 zero bytes, then 0xff 0xff,
// then the 4 address bytes), so a single
// 16-byte field serves both kinds.
type Locator struct {
	Kind    Kind
	Address [16]byte
	Port    uint32
	ScopeID uint32
	Scope   Scope
	Flags   Flags
	Handle  uintptr
}

// v4InV6Prefix is the standard ::ffff:0:0/96 IPv4-mapped prefix.
var v4InV6Prefix = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// FromIP builds a Locator address field from a net.IP, mapping IPv4
// addresses into the IPv4-mapped IPv6 form.
func FromIP(ip net.IP) (addr [16]byte) {
	if v4 := ip.To4(); v4 != nil {
		copy(addr[:12], v4InV6Prefix[:])
		copy(addr[12:], v4)
		return
	}
	copy(addr[:], ip.To16())
	return
}

// IP returns the Locator's address as a net.IP, unwrapping an
// IPv4-mapped address back to 4-byte form when Kind is KindUDPv4.
func (l *Locator) IP() net.IP {
	if l.Kind == KindUDPv4 {
		return net.IP(l.Address[12:16])
	}
	return net.IP(l.Address[:])
}

// ClassifyScope derives a Scope from an address, following the standard
// IPv4/IPv6 reachability classes: loopback is node-local, link-local
// unicast/multicast is link-local, IPv4 private ranges and IPv6
// unique-local/site-local are org-local, everything else is global.
func ClassifyScope(ip net.IP) Scope {
	switch {
	case ip.IsLoopback():
		return ScopeNode
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return ScopeLink
	case ip.IsInterfaceLocalMulticast():
		return ScopeNode
	case isPrivateOrULA(ip):
		return ScopeOrg
	default:
		return ScopeGlobal
	}
}

func isPrivateOrULA(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		return v4[0] == 10 ||
			(v4[0] == 172 && v4[1]&0xf0 == 16) ||
			(v4[0] == 192 && v4[1] == 168)
	}
	return len(ip) == 16 &&
		(ip[0]&0xfe == 0xfc || // fc00::/7
			(ip[0] == 0xfe && ip[1]&0xc0 == 0xc0)) // fec0::/10 site-local
}

// PortParams are the four offsets and two gains spec.md §4.G defines
// per transport kind: port = pb + dg*domain + pg*participant + dn,
// where the participant term only applies to the two unicast ports.
type PortParams struct {
	PortBase        uint32
	DomainGain      uint32
	ParticipantGain uint32
	MetaMulticast   uint32 // d0
	MetaUnicast     uint32 // d1
	UserMulticast   uint32 // d2
	UserUnicast     uint32 // d3
}

// DefaultPortParams returns the RTPS well-known port parameters, matching
// spec.md's Scenario 5 defaults.
func DefaultPortParams() PortParams {
	return PortParams{
		PortBase:        7400,
		DomainGain:      250,
		ParticipantGain: 2,
		MetaMulticast:   0,
		MetaUnicast:     10,
		UserMulticast:   1,
		UserUnicast:     11,
	}
}

// ErrPortOutOfRange is returned by the port derivation functions when
// the computed port reaches or exceeds 65535, per spec.md §4.G.
var ErrPortOutOfRange = errors.New("locator: derived port out of range")

func derive(p PortParams, domain, participant uint32, dn uint32, withParticipant bool) (uint32, error) {
	port := p.PortBase + p.DomainGain*domain + dn
	if withParticipant {
		port += p.ParticipantGain * participant
	}
	if port >= 65535 {
		return 0, ErrPortOutOfRange
	}
	return port, nil
}

// MetaMulticastPort, MetaUnicastPort, UserMulticastPort and
// UserUnicastPort derive the four well-known ports for a given domain
// and participant id, per spec.md §4.G / Scenario 5.
func MetaMulticastPort(p PortParams, domain uint32) (uint32, error) {
	return derive(p, domain, 0, p.MetaMulticast, false)
}

func MetaUnicastPort(p PortParams, domain, participant uint32) (uint32, error) {
	return derive(p, domain, participant, p.MetaUnicast, true)
}

func UserMulticastPort(p PortParams, domain uint32) (uint32, error) {
	return derive(p, domain, 0, p.UserMulticast, false)
}

func UserUnicastPort(p PortParams, domain, participant uint32) (uint32, error) {
	return derive(p, domain, participant, p.UserUnicast, true)
}
