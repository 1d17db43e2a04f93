package routedlan

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostCIDR(t *testing.T) {
	tests := []struct {
		cidr   string
		reason string // empty means valid
	}{
		{"20.10.172.130/26", ""},
		{"10.0.10.1/30", ""},
		{"10.0.0.1/32", ""},
		{"10.0.0.0/31", ""}, // /31 has no network address
		{"nonsense", "no '/'"},
		{"20.10.172.130", "no '/'"},
		{"2001:db8::1/64", "not an IPv4 address"},
		{"20.10.172.130/0", "out of range"},
		{"20.10.172.128/26", "network address"},
		{"20.10.172.191/26", "broadcast address"},
		{"10.0.10.0/30", "network address"},
		{"10.0.10.3/30", "broadcast address"},
	}
	for _, tt := range tests {
		_, err := parseHostCIDR("x-eth0", tt.cidr)
		if tt.reason == "" {
			assert.NoError(t, err, tt.cidr)
			continue
		}
		var mErr *MalformedAddressError
		require.ErrorAs(t, err, &mErr, tt.cidr)
		assert.Contains(t, mErr.Error(), tt.reason, tt.cidr)
	}
}

func TestAssignOverlapAcrossSegments(t *testing.T) {
	// hA1 injected with an address in segment B's subnet must fail before
	// anything is emitted.
	spec := DefaultSpec()
	spec.Segments[0].Hosts[0].Address = "20.10.172.5/25"
	_, err := BuildTopology(spec)
	var oErr *OverlapError
	require.ErrorAs(t, err, &oErr)
	// Segment A is built first, so hA1's stray /25 sits alone until rB's
	// gateway lands in the same subnet; the error names the interface
	// being assigned and the earlier holder.
	assert.Equal(t, "rB-eth1", oErr.Interface)
	assert.Equal(t, "hA1-eth0", oErr.Other)
	assert.Equal(t, "20.10.172.0/25", oErr.Subnet.String())
}

func TestAssignPartialOverlapWithinSegment(t *testing.T) {
	// A narrower prefix inside the segment subnet is not the identical
	// subnet, so it is an overlap even on the right switch.
	spec := DefaultSpec()
	spec.Segments[0].Hosts[0].Address = "20.10.172.130/27"
	_, err := BuildTopology(spec)
	var oErr *OverlapError
	require.ErrorAs(t, err, &oErr)
}

func TestAssignPointToPointSharedSubnet(t *testing.T) {
	m := NewModel()
	for _, r := range []string{"rA", "rB"} {
		_, err := m.AddRouter(r)
		require.NoError(t, err)
	}
	l, err := m.AddRouterLink("rA", "rB", "10.0.10.1/30", "10.0.10.2/30")
	require.NoError(t, err)
	assert.True(t, l.P2P)
	assert.Equal(t, l.A.Subnet(), l.B.Subnet())
}

func TestAssignPointToPointAddressReuse(t *testing.T) {
	m := NewModel()
	for _, r := range []string{"rA", "rB"} {
		_, err := m.AddRouter(r)
		require.NoError(t, err)
	}
	_, err := m.AddRouterLink("rA", "rB", "10.0.10.1/30", "10.0.10.1/30")
	var mErr *MalformedAddressError
	require.ErrorAs(t, err, &mErr)
}

func TestAssignOverlappingPointToPointLinks(t *testing.T) {
	m := NewModel()
	for _, r := range []string{"rA", "rB", "rC"} {
		_, err := m.AddRouter(r)
		require.NoError(t, err)
	}
	_, err := m.AddRouterLink("rA", "rB", "10.0.10.1/30", "10.0.10.2/30")
	require.NoError(t, err)
	// Same /30 on a different link.
	_, err = m.AddRouterLink("rB", "rC", "10.0.10.1/30", "10.0.10.2/30")
	var oErr *OverlapError
	require.ErrorAs(t, err, &oErr)
}

func TestValidateSegmentHostOutsideSubnet(t *testing.T) {
	spec := DefaultSpec()
	spec.Segments[2].Hosts[1].Address = "30.0.0.2/27"
	_, err := BuildTopology(spec)
	var sErr *SegmentAddressingError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "C", sErr.Segment)
	assert.Equal(t, "hC2", sErr.Host)
}

func TestValidateSegmentHostCollision(t *testing.T) {
	spec := DefaultSpec()
	spec.Segments[1].Hosts[1].Address = spec.Segments[1].Hosts[0].Address
	_, err := BuildTopology(spec)
	var sErr *SegmentAddressingError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "B", sErr.Segment)
	assert.Equal(t, "hB2", sErr.Host)
}

func TestValidateSegmentHostGatewayCollision(t *testing.T) {
	spec := DefaultSpec()
	spec.Segments[0].Hosts[0].Address = spec.Segments[0].Gateway
	_, err := BuildTopology(spec)
	var sErr *SegmentAddressingError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "hA1", sErr.Host)
}

func TestValidateSegmentPrefixMismatch(t *testing.T) {
	// Contained in the segment subnet but with the wrong prefix length.
	// Unreachable through BuildTopology (Assign rejects it as an overlap
	// first), so exercised against the planner directly.
	gw := &Interface{
		Name: "rA-eth1",
		Node: &Node{Name: "rA", Role: RoleRouter},
		Addr: netip.MustParsePrefix("10.1.0.1/24"),
	}
	hi := &Interface{
		Name: "h1-eth0",
		Node: &Node{Name: "h1", Role: RoleHost},
		Addr: netip.MustParsePrefix("10.1.0.2/26"),
	}
	s := &Segment{Name: "A", Router: gw, Hosts: []*Interface{hi}}
	err := NewPlanner().ValidateSegment(s)
	var sErr *SegmentAddressingError
	require.ErrorAs(t, err, &sErr)
	assert.Contains(t, sErr.Error(), "prefix length")
}
