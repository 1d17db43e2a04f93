package routedlan

import (
	"fmt"
	"net/netip"
)

// Planner records interface address assignments and rejects plans in which
// two subnets intersect. The only permitted intersection is the pair of
// addresses on one point-to-point link, which must share a subnet exactly.
// All checks are pure; no network I/O happens here.
type Planner struct {
	assigned []*Interface
}

// NewPlanner returns an empty address plan.
func NewPlanner() *Planner {
	return &Planner{}
}

// Assign parses cidr, validates it as a usable IPv4 host address and
// records it on the interface.
func (p *Planner) Assign(ifc *Interface, cidr string) error {
	addr, err := parseHostCIDR(ifc.Name, cidr)
	if err != nil {
		return err
	}
	sub := addr.Masked()
	for _, other := range p.assigned {
		if !other.Subnet().Overlaps(sub) {
			continue
		}
		if ifc.Link != nil && other.Link == ifc.Link && ifc.Link.P2P {
			// Far end of the same point-to-point link. The subnets must
			// be identical, which AddRouterLink enforces; here it is
			// enough that address reuse is still forbidden.
			if other.Addr.Addr() == addr.Addr() {
				return &MalformedAddressError{
					Interface: ifc.Name,
					CIDR:      cidr,
					Reason:    fmt.Sprintf("address already used by peer %s", other.Name),
				}
			}
			continue
		}
		if sub == other.Subnet() && sameSegment(ifc, other) {
			// Members of one broadcast domain share the segment subnet.
			// Address collisions within it are caught by ValidateSegment.
			continue
		}
		return &OverlapError{
			Interface: ifc.Name,
			Subnet:    sub,
			Other:     other.Name,
			OtherNet:  other.Subnet(),
		}
	}
	ifc.Addr = addr
	p.assigned = append(p.assigned, ifc)
	return nil
}

// sameSegment reports whether both interfaces attach to the same switch,
// i.e. sit in one broadcast domain.
func sameSegment(a, b *Interface) bool {
	if a.Link == nil || b.Link == nil || a.Link.P2P || b.Link.P2P {
		return false
	}
	pa, pb := a.Link.Peer(a).Node, b.Link.Peer(b).Node
	return pa == pb && pa.Role == RoleSwitch
}

// ValidateSegment checks segment-internal addressing: every host address
// lies in the subnet defined by the router attachment, and no two
// endpoints on the segment share an address.
func (p *Planner) ValidateSegment(s *Segment) error {
	if s.Router == nil {
		return &SegmentAddressingError{Segment: s.Name, Reason: "no router attachment"}
	}
	sub := s.Subnet()
	seen := map[netip.Addr]string{s.Router.Addr.Addr(): s.Router.Node.Name}
	for _, h := range s.Hosts {
		if !sub.Contains(h.Addr.Addr()) {
			return &SegmentAddressingError{
				Segment: s.Name,
				Host:    h.Node.Name,
				Reason:  fmt.Sprintf("address %s outside segment subnet %s", h.Addr, sub),
			}
		}
		if h.Addr.Bits() != s.Router.Addr.Bits() {
			return &SegmentAddressingError{
				Segment: s.Name,
				Host:    h.Node.Name,
				Reason: fmt.Sprintf("prefix length /%d does not match segment /%d",
					h.Addr.Bits(), s.Router.Addr.Bits()),
			}
		}
		if first, ok := seen[h.Addr.Addr()]; ok {
			return &SegmentAddressingError{
				Segment: s.Name,
				Host:    h.Node.Name,
				Reason:  fmt.Sprintf("address %s already used by %s", h.Addr.Addr(), first),
			}
		}
		seen[h.Addr.Addr()] = h.Node.Name
	}
	return nil
}

// parseHostCIDR parses an IPv4 host address in CIDR form. The prefix
// length must be 1-32 and the address must not be the network or
// broadcast address of its subnet (prefixes of /31 and /32 have none).
func parseHostCIDR(ifcName, cidr string) (netip.Prefix, error) {
	pfx, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, &MalformedAddressError{
			Interface: ifcName, CIDR: cidr, Reason: err.Error(),
		}
	}
	if !pfx.Addr().Is4() {
		return netip.Prefix{}, &MalformedAddressError{
			Interface: ifcName, CIDR: cidr, Reason: "not an IPv4 address",
		}
	}
	if pfx.Bits() < 1 || pfx.Bits() > 32 {
		return netip.Prefix{}, &MalformedAddressError{
			Interface: ifcName, CIDR: cidr,
			Reason: fmt.Sprintf("prefix length /%d out of range", pfx.Bits()),
		}
	}
	if pfx.Bits() <= 30 {
		if pfx.Addr() == pfx.Masked().Addr() {
			return netip.Prefix{}, &MalformedAddressError{
				Interface: ifcName, CIDR: cidr, Reason: "network address is not a host address",
			}
		}
		if pfx.Addr() == broadcast(pfx) {
			return netip.Prefix{}, &MalformedAddressError{
				Interface: ifcName, CIDR: cidr, Reason: "broadcast address is not a host address",
			}
		}
	}
	return pfx, nil
}

// broadcast returns the highest address of the prefix's subnet.
func broadcast(pfx netip.Prefix) netip.Addr {
	a4 := pfx.Masked().Addr().As4()
	host := uint32(0xffffffff) >> pfx.Bits()
	n := uint32(a4[0])<<24 | uint32(a4[1])<<16 | uint32(a4[2])<<8 | uint32(a4[3])
	n |= host
	return netip.AddrFrom4([4]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
}
