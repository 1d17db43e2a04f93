package routedlan

import (
	"fmt"
)

// Plan is the compiled configuration for the whole network: node and link
// wiring for the substrate to create, plus per-node command lists to run
// once the wiring exists. It marshals to YAML.
type Plan struct {
	Nodes       []PlanNode   `yaml:"nodes"`
	Switches    []PlanSwitch `yaml:"switches,omitempty"`
	NodeConfigs []NodeConfig `yaml:"node_configs"`
}

// PlanNode describes a host or router and its link endpoints.
type PlanNode struct {
	Name       string          `yaml:"name"`
	Role       string          `yaml:"role"`
	Interfaces []PlanInterface `yaml:"interfaces,omitempty"`
}

// PlanSwitch describes a segment switch.
type PlanSwitch struct {
	Name    string `yaml:"name"`
	Segment string `yaml:"segment"`
}

// PlanInterface wires one interface to its peer. Only one end of each
// link is declared; the substrate creates the reverse side from Args,
// which holds "<peerNode>#<peerInterface>".
type PlanInterface struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Args string `yaml:"args"`
}

// NodeConfig is the ordered command list for one node.
type NodeConfig struct {
	Name string    `yaml:"name"`
	Cmds []Command `yaml:"cmds"`
}

// Command is a single shell-level configuration command.
type Command struct {
	Cmd string `yaml:"cmd"`
}

// Step is one (node, command) pair of the flattened plan.
type Step struct {
	Node string
	Cmd  string
}

// Steps flattens the plan's command lists, preserving per-node order.
func (p *Plan) Steps() []Step {
	var steps []Step
	for _, nc := range p.NodeConfigs {
		for _, c := range nc.Cmds {
			steps = append(steps, Step{Node: nc.Name, Cmd: c.Cmd})
		}
	}
	return steps
}

// Emitter renders configuration commands from a finalized model and its
// computed routes, driving the router lifecycle as it goes. It performs
// no execution; applying the output is the substrate's job.
type Emitter struct {
	model  *Model
	routes *Routes
}

// NewEmitter returns an emitter over a finalized model.
func NewEmitter(m *Model, r *Routes) (*Emitter, error) {
	if !m.Finalized() {
		return nil, fmt.Errorf("emitter: model not finalized")
	}
	return &Emitter{model: m, routes: r}, nil
}

// Start emits a router's startup commands and moves it to Forwarding:
// every owned interface up with its address, forwarding enabled, then the
// routing table. Entry order within the table is insignificant since
// destinations are disjoint.
func (e *Emitter) Start(router string) ([]Command, error) {
	n := e.model.Node(router)
	if n == nil || n.Role != RoleRouter {
		return nil, fmt.Errorf("start: unknown router %s", router)
	}
	if err := startRouter(n); err != nil {
		return nil, err
	}
	var cmds []Command
	for _, ifc := range n.Interfaces {
		cmds = append(cmds, interfaceUp(ifc)...)
	}
	cmds = append(cmds, Command{Cmd: "sysctl -w net.ipv4.ip_forward=1"})
	for _, rt := range e.routes.Routers[router] {
		cmds = append(cmds, Command{
			Cmd: fmt.Sprintf("ip route add %s via %s dev %s", rt.Dest, rt.Gateway, rt.Interface),
		})
	}
	return cmds, nil
}

// Stop emits a router's teardown command and moves it to Disabled.
func (e *Emitter) Stop(router string) ([]Command, error) {
	n := e.model.Node(router)
	if n == nil || n.Role != RoleRouter {
		return nil, fmt.Errorf("stop: unknown router %s", router)
	}
	if err := stopRouter(n); err != nil {
		return nil, err
	}
	return []Command{{Cmd: "sysctl -w net.ipv4.ip_forward=0"}}, nil
}

// HostConfig emits a host's commands: its one interface up, then the
// default route toward the segment router.
func (e *Emitter) HostConfig(host string) ([]Command, error) {
	n := e.model.Node(host)
	if n == nil || n.Role != RoleHost {
		return nil, fmt.Errorf("host config: unknown host %s", host)
	}
	dr, ok := e.routes.Hosts[host]
	if !ok {
		return nil, fmt.Errorf("host config: no default route for %s", host)
	}
	var cmds []Command
	for _, ifc := range n.Interfaces {
		cmds = append(cmds, interfaceUp(ifc)...)
	}
	cmds = append(cmds, Command{Cmd: fmt.Sprintf("ip route add default via %s", dr.Gateway)})
	return cmds, nil
}

// Teardown emits the forwarding-disable step for every router still in
// Forwarding, in name order.
func (e *Emitter) Teardown() ([]Step, error) {
	var steps []Step
	for _, r := range e.model.Routers() {
		if r.State() != Forwarding {
			continue
		}
		cmds, err := e.Stop(r.Name)
		if err != nil {
			return nil, err
		}
		for _, c := range cmds {
			steps = append(steps, Step{Node: r.Name, Cmd: c.Cmd})
		}
	}
	return steps, nil
}

func interfaceUp(ifc *Interface) []Command {
	return []Command{
		{Cmd: fmt.Sprintf("ip addr add %s dev %s", ifc.Addr, ifc.Name)},
		{Cmd: fmt.Sprintf("ip link set %s up", ifc.Name)},
	}
}

// Emit compiles the full startup plan: link wiring for every node, then
// router configs in name order followed by host configs in segment order.
// Every router ends up Forwarding.
func Emit(m *Model, routes *Routes) (*Plan, error) {
	e, err := NewEmitter(m, routes)
	if err != nil {
		return nil, err
	}
	p := &Plan{}

	for _, n := range m.Nodes() {
		switch n.Role {
		case RoleSwitch:
			continue
		default:
			p.Nodes = append(p.Nodes, PlanNode{
				Name:       n.Name,
				Role:       string(n.Role),
				Interfaces: wiring(n),
			})
		}
	}
	for _, s := range m.Segments() {
		p.Switches = append(p.Switches, PlanSwitch{Name: s.Switch.Name, Segment: s.Name})
	}

	for _, r := range m.Routers() {
		cmds, err := e.Start(r.Name)
		if err != nil {
			return nil, err
		}
		p.NodeConfigs = append(p.NodeConfigs, NodeConfig{Name: r.Name, Cmds: cmds})
	}
	for _, s := range m.Segments() {
		for _, h := range s.Hosts {
			cmds, err := e.HostConfig(h.Node.Name)
			if err != nil {
				return nil, err
			}
			p.NodeConfigs = append(p.NodeConfigs, NodeConfig{Name: h.Node.Name, Cmds: cmds})
		}
	}
	return p, nil
}

// wiring declares n's link endpoints. Host and router ends of LAN links
// carry the declaration; for point-to-point links the A side does, so
// each link appears exactly once in the plan.
func wiring(n *Node) []PlanInterface {
	var ifaces []PlanInterface
	for _, ifc := range n.Interfaces {
		l := ifc.Link
		if l == nil {
			continue
		}
		peer := l.Peer(ifc)
		if l.P2P && l.A != ifc {
			continue
		}
		ifaces = append(ifaces, PlanInterface{
			Name: ifc.Name,
			Type: "direct",
			Args: fmt.Sprintf("%s#%s", peer.Node.Name, peer.Name),
		})
	}
	return ifaces
}
