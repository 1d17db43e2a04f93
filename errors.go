package routedlan

import (
	"fmt"
	"net/netip"
)

// MalformedAddressError reports a CIDR that is not a usable IPv4 host
// address with a sane prefix length.
type MalformedAddressError struct {
	Interface string
	CIDR      string
	Reason    string
}

func (e *MalformedAddressError) Error() string {
	return fmt.Sprintf("malformed address %q on %s: %s", e.CIDR, e.Interface, e.Reason)
}

// OverlapError reports two interface subnets that intersect without being
// the two ends of the same point-to-point link.
type OverlapError struct {
	Interface string
	Subnet    netip.Prefix
	Other     string
	OtherNet  netip.Prefix
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("subnet %s on %s overlaps %s on %s",
		e.Subnet, e.Interface, e.OtherNet, e.Other)
}

// SegmentAddressingError reports a segment whose addressing is internally
// inconsistent: a host outside the router-defined subnet, colliding host
// addresses, or a violated single-router-attachment rule.
type SegmentAddressingError struct {
	Segment string
	Host    string
	Reason  string
}

func (e *SegmentAddressingError) Error() string {
	if e.Host != "" {
		return fmt.Sprintf("segment %s: host %s: %s", e.Segment, e.Host, e.Reason)
	}
	return fmt.Sprintf("segment %s: %s", e.Segment, e.Reason)
}

// DuplicateNameError reports reuse of a node, segment or interface
// identifier.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate %s name %q", e.Kind, e.Name)
}

// DisconnectedTopologyError reports a router that cannot reach a segment
// through any path of router links.
type DisconnectedTopologyError struct {
	Router  string
	Segment string
}

func (e *DisconnectedTopologyError) Error() string {
	return fmt.Sprintf("router %s cannot reach segment %s", e.Router, e.Segment)
}

// UnreachableSegmentError reports a route computation that found no path
// after Finalize had accepted the topology. This is an internal
// consistency fault, not a user input error.
type UnreachableSegmentError struct {
	Router  string
	Segment string
}

func (e *UnreachableSegmentError) Error() string {
	return fmt.Sprintf("internal: no path from router %s to segment %s after finalize", e.Router, e.Segment)
}

// LifecycleViolationError reports a router lifecycle transition invoked
// out of order by the substrate. Like UnreachableSegmentError it indicates
// a programming-contract failure.
type LifecycleViolationError struct {
	Router string
	State  RouterState
	Op     string
}

func (e *LifecycleViolationError) Error() string {
	return fmt.Sprintf("internal: %s on router %s in state %s", e.Op, e.Router, e.State)
}
