package routedlan

// RouterState is the per-router configuration lifecycle. A router starts
// Unconfigured, moves to Forwarding when its startup commands are emitted
// and ends Disabled at teardown. Disabled is terminal.
type RouterState int

const (
	Unconfigured RouterState = iota
	Forwarding
	Disabled
)

func (s RouterState) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Forwarding:
		return "forwarding"
	case Disabled:
		return "disabled"
	}
	return "unknown"
}

// State returns the lifecycle state of a router node.
func (n *Node) State() RouterState {
	return n.state
}

// startRouter transitions Unconfigured to Forwarding.
func startRouter(n *Node) error {
	if n.state != Unconfigured {
		return &LifecycleViolationError{Router: n.Name, State: n.state, Op: "start"}
	}
	n.state = Forwarding
	return nil
}

// stopRouter transitions Forwarding to Disabled. Any other starting state
// means the substrate invoked teardown out of order.
func stopRouter(n *Node) error {
	if n.state != Forwarding {
		return &LifecycleViolationError{Router: n.Name, State: n.state, Op: "stop"}
	}
	n.state = Disabled
	return nil
}
