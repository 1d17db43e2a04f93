package routedlan

import (
	"fmt"
	"net/netip"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// Role classifies a node.
type Role string

const (
	RoleHost   Role = "host"
	RoleRouter Role = "router"
	RoleSwitch Role = "switch"
)

// Node is a device in the topology. The model owns all nodes; a Node never
// outlives the Model that created it.
type Node struct {
	Name       string
	Role       Role
	Interfaces []*Interface

	state   RouterState // routers only, driven by the Emitter
	nextIdx int
}

// Interface is one attachment point on a node. Addr is the zero Prefix
// until assigned. Names follow <node>-eth<N> with N in link-declaration
// order: routers and switches count from 1, hosts from 0.
type Interface struct {
	Name string
	Node *Node
	Addr netip.Prefix
	Link *Link
}

// Subnet returns the subnet implied by the interface address.
func (i *Interface) Subnet() netip.Prefix {
	return i.Addr.Masked()
}

// Link joins exactly two interfaces. P2P marks a router-to-router link
// whose two ends share one subnet.
type Link struct {
	A, B *Interface
	P2P  bool
}

// Peer returns the far end of the link.
func (l *Link) Peer(i *Interface) *Interface {
	if l.A == i {
		return l.B
	}
	return l.A
}

// Segment is a broadcast domain: a switch, exactly one router attachment
// and zero or more hosts. The router interface defines the subnet.
type Segment struct {
	Name   string
	Switch *Node
	Router *Interface
	Hosts  []*Interface
}

// Subnet returns the segment subnet, defined by the router attachment.
func (s *Segment) Subnet() netip.Prefix {
	return s.Router.Subnet()
}

// Model is the authoritative topology graph. It is built once, finalized
// once, and read-only afterwards except for router lifecycle state.
type Model struct {
	nodes     map[string]*Node
	nodeOrder []*Node
	segments  map[string]*Segment
	segOrder  []*Segment
	links     []*Link
	planner   *Planner
	finalized bool
}

// NewModel returns an empty topology model.
func NewModel() *Model {
	return &Model{
		nodes:    make(map[string]*Node),
		segments: make(map[string]*Segment),
		planner:  NewPlanner(),
	}
}

func (m *Model) addNode(name string, role Role) (*Node, error) {
	if m.finalized {
		return nil, fmt.Errorf("add node %s: model is finalized", name)
	}
	if _, ok := m.nodes[name]; ok {
		return nil, &DuplicateNameError{Kind: "node", Name: name}
	}
	n := &Node{Name: name, Role: role}
	if role != RoleHost {
		n.nextIdx = 1
	}
	m.nodes[name] = n
	m.nodeOrder = append(m.nodeOrder, n)
	return n, nil
}

func (n *Node) newInterface() *Interface {
	ifc := &Interface{
		Name: fmt.Sprintf("%s-eth%d", n.Name, n.nextIdx),
		Node: n,
	}
	n.nextIdx++
	n.Interfaces = append(n.Interfaces, ifc)
	return ifc
}

// AddRouter adds a router node.
func (m *Model) AddRouter(name string) (*Node, error) {
	return m.addNode(name, RoleRouter)
}

// AddSegment adds a broadcast domain backed by a switch node named
// switchName. The segment has no router attachment yet; see AttachRouter.
func (m *Model) AddSegment(name, switchName string) (*Segment, error) {
	if _, ok := m.segments[name]; ok {
		return nil, &DuplicateNameError{Kind: "segment", Name: name}
	}
	sw, err := m.addNode(switchName, RoleSwitch)
	if err != nil {
		return nil, err
	}
	s := &Segment{Name: name, Switch: sw}
	m.segments[name] = s
	m.segOrder = append(m.segOrder, s)
	return s, nil
}

// AttachRouter connects a router to a segment and assigns the interface
// address that defines the segment subnet. A segment supports exactly one
// router attachment.
func (m *Model) AttachRouter(segment, router, cidr string) (*Interface, error) {
	s, ok := m.segments[segment]
	if !ok {
		return nil, fmt.Errorf("attach router %s: unknown segment %s", router, segment)
	}
	r, ok := m.nodes[router]
	if !ok || r.Role != RoleRouter {
		return nil, fmt.Errorf("attach router: unknown router %s", router)
	}
	if s.Router != nil {
		return nil, &SegmentAddressingError{
			Segment: segment,
			Reason:  fmt.Sprintf("already served by router %s", s.Router.Node.Name),
		}
	}
	ifc, err := m.attach(r, s.Switch, cidr)
	if err != nil {
		return nil, err
	}
	s.Router = ifc
	return ifc, nil
}

// AttachHost creates a host node and connects it to a segment.
func (m *Model) AttachHost(segment, host, cidr string) (*Interface, error) {
	s, ok := m.segments[segment]
	if !ok {
		return nil, fmt.Errorf("attach host %s: unknown segment %s", host, segment)
	}
	h, err := m.addNode(host, RoleHost)
	if err != nil {
		return nil, err
	}
	ifc, err := m.attach(h, s.Switch, cidr)
	if err != nil {
		return nil, err
	}
	s.Hosts = append(s.Hosts, ifc)
	return ifc, nil
}

// attach links a node to a segment switch and assigns cidr to the node
// side. The switch side carries no address.
func (m *Model) attach(n, sw *Node, cidr string) (*Interface, error) {
	ifc := n.newInterface()
	swIfc := sw.newInterface()
	l := &Link{A: ifc, B: swIfc}
	ifc.Link = l
	swIfc.Link = l
	m.links = append(m.links, l)
	if err := m.planner.Assign(ifc, cidr); err != nil {
		return nil, err
	}
	return ifc, nil
}

// AddRouterLink creates a point-to-point link between two routers. Both
// ends receive addresses, which must lie in one shared subnet.
func (m *Model) AddRouterLink(a, b, cidrA, cidrB string) (*Link, error) {
	if a == b {
		return nil, fmt.Errorf("router link %s-%s: link ends on the same router", a, b)
	}
	ra, ok := m.nodes[a]
	if !ok || ra.Role != RoleRouter {
		return nil, fmt.Errorf("router link %s-%s: unknown router %s", a, b, a)
	}
	rb, ok := m.nodes[b]
	if !ok || rb.Role != RoleRouter {
		return nil, fmt.Errorf("router link %s-%s: unknown router %s", a, b, b)
	}
	ifcA := ra.newInterface()
	ifcB := rb.newInterface()
	l := &Link{A: ifcA, B: ifcB, P2P: true}
	ifcA.Link = l
	ifcB.Link = l
	m.links = append(m.links, l)
	if err := m.planner.Assign(ifcA, cidrA); err != nil {
		return nil, err
	}
	if err := m.planner.Assign(ifcB, cidrB); err != nil {
		return nil, err
	}
	if ifcA.Subnet() != ifcB.Subnet() {
		return nil, &MalformedAddressError{
			Interface: ifcB.Name,
			CIDR:      cidrB,
			Reason:    fmt.Sprintf("point-to-point peer subnets differ (%s vs %s)", ifcA.Subnet(), ifcB.Subnet()),
		}
	}
	return l, nil
}

// Neighbors returns the routers directly linked to r and the segments
// attached via its LAN interfaces, both in name order.
func (m *Model) Neighbors(r *Node) (routers []*Node, segments []*Segment) {
	for _, ifc := range r.Interfaces {
		if ifc.Link == nil {
			continue
		}
		peer := ifc.Link.Peer(ifc)
		if ifc.Link.P2P {
			routers = append(routers, peer.Node)
			continue
		}
		for _, s := range m.segOrder {
			if s.Switch == peer.Node {
				segments = append(segments, s)
			}
		}
	}
	sort.Slice(routers, func(i, j int) bool { return routers[i].Name < routers[j].Name })
	sort.Slice(segments, func(i, j int) bool { return segments[i].Name < segments[j].Name })
	return routers, segments
}

// Routers returns the router nodes in name order.
func (m *Model) Routers() []*Node {
	var rs []*Node
	for _, n := range m.nodeOrder {
		if n.Role == RoleRouter {
			rs = append(rs, n)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Name < rs[j].Name })
	return rs
}

// Segments returns the segments in name order.
func (m *Model) Segments() []*Segment {
	ss := append([]*Segment(nil), m.segOrder...)
	sort.Slice(ss, func(i, j int) bool { return ss[i].Name < ss[j].Name })
	return ss
}

// Nodes returns all nodes in declaration order.
func (m *Model) Nodes() []*Node {
	return append([]*Node(nil), m.nodeOrder...)
}

// Links returns all links in declaration order.
func (m *Model) Links() []*Link {
	return append([]*Link(nil), m.links...)
}

// Node returns the named node, or nil.
func (m *Model) Node(name string) *Node {
	return m.nodes[name]
}

// Segment returns the named segment, or nil.
func (m *Model) Segment(name string) *Segment {
	return m.segments[name]
}

// routerGraph builds the undirected router-link graph. Node IDs are
// assigned over the name-sorted router list so that graph positions are
// stable across runs.
func (m *Model) routerGraph() (*simple.UndirectedGraph, map[string]int64, []*Node) {
	routers := m.Routers()
	ids := make(map[string]int64, len(routers))
	g := simple.NewUndirectedGraph()
	for i, r := range routers {
		ids[r.Name] = int64(i)
		g.AddNode(simple.Node(int64(i)))
	}
	for _, l := range m.links {
		if !l.P2P {
			continue
		}
		a, b := ids[l.A.Node.Name], ids[l.B.Node.Name]
		if a == b {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(a), simple.Node(b)))
	}
	return g, ids, routers
}

// Finalize validates the assembled model and freezes it. After Finalize
// the model is read-only apart from router lifecycle state.
func (m *Model) Finalize() error {
	for _, s := range m.Segments() {
		if s.Router == nil {
			return &SegmentAddressingError{Segment: s.Name, Reason: "no router attachment"}
		}
		if err := m.planner.ValidateSegment(s); err != nil {
			return err
		}
	}
	g, ids, routers := m.routerGraph()
	var bfs traverse.BreadthFirst
	for _, r := range routers {
		bfs.Reset()
		bfs.Walk(g, g.Node(ids[r.Name]), nil)
		for _, s := range m.Segments() {
			if !bfs.Visited(simple.Node(ids[s.Router.Node.Name])) {
				return &DisconnectedTopologyError{Router: r.Name, Segment: s.Name}
			}
		}
	}
	m.finalized = true
	return nil
}

// Finalized reports whether Finalize has succeeded.
func (m *Model) Finalized() bool {
	return m.finalized
}
