package locator

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocatorDerivationScenario(t *testing.T) {
	p := DefaultPortParams()

	userUnicast, err := UserUnicastPort(p, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(9167), userUnicast)

	userMulticast, err := UserMulticastPort(p, 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(9151), userMulticast)

	metaUnicast, err := MetaUnicastPort(p, 7, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(9166), metaUnicast)

	metaMulticast, err := MetaMulticastPort(p, 7)
	require.NoError(t, err)
	assert.Equal(t, uint32(9150), metaMulticast)
}

func TestPortOutOfRangeIsRejected(t *testing.T) {
	p := DefaultPortParams()
	p.PortBase = 65530
	_, err := MetaMulticastPort(p, 1)
	assert.ErrorIs(t, err, ErrPortOutOfRange)
}

func TestFromIPRoundTripsV4Mapped(t *testing.T) {
	addr := FromIP(net.ParseIP("192.168.1.10"))
	loc := Locator{Kind: KindUDPv4, Address: addr}
	assert.Equal(t, "192.168.1.10", loc.IP().String())
}

func TestFromIPRoundTripsV6(t *testing.T) {
	ip := net.ParseIP("2001:db8::1")
	addr := FromIP(ip)
	loc := Locator{Kind: KindUDPv6, Address: addr}
	assert.True(t, ip.Equal(loc.IP()))
}

func TestClassifyScope(t *testing.T) {
	assert.Equal(t, ScopeNode, ClassifyScope(net.ParseIP("127.0.0.1")))
	assert.Equal(t, ScopeLink, ClassifyScope(net.ParseIP("169.254.1.1")))
	assert.Equal(t, ScopeOrg, ClassifyScope(net.ParseIP("192.168.1.1")))
	assert.Equal(t, ScopeOrg, ClassifyScope(net.ParseIP("10.0.0.1")))
	assert.Equal(t, ScopeGlobal, ClassifyScope(net.ParseIP("8.8.8.8")))
}

func TestListRefcounting(t *testing.T) {
	var l List
	loc := Locator{Kind: KindUDPv4, Address: FromIP(net.ParseIP("239.1.1.1")), Port: 9151}

	l.Add(loc)
	l.Add(loc)
	assert.Equal(t, 2, l.Users(loc))
	assert.Equal(t, 1, l.Len())

	l.Remove(loc)
	assert.Equal(t, 1, l.Users(loc))
	assert.Equal(t, 1, l.Len())

	l.Remove(loc)
	assert.Equal(t, 0, l.Users(loc))
	assert.Equal(t, 0, l.Len())
}
