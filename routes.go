package routedlan

import (
	"fmt"
	"math"
	"net/netip"

	"gonum.org/v1/gonum/graph/path"
)

// Route is one static routing table entry: traffic for Dest leaves
// through Interface toward Gateway.
type Route struct {
	Dest      netip.Prefix
	Gateway   netip.Addr
	Interface string
}

// RoutingTable is a router's static routes, ordered by destination
// segment name. Destinations are disjoint by construction, so no
// longest-match semantics are needed and each destination appears once.
type RoutingTable []Route

// DefaultRoute is a host's single gateway: the address of the router
// interface on its segment.
type DefaultRoute struct {
	Gateway netip.Addr
}

// Routes holds the derived configuration state for every router and host.
type Routes struct {
	Routers map[string]RoutingTable
	Hosts   map[string]DefaultRoute
}

// ComputeRoutes derives each router's static routes and each host's
// default gateway from a finalized model.
//
// For a router R and a segment S served by another router, the next hop
// is R's neighbor on a shortest hop-count path to S's router; when
// several neighbors tie, the lexicographically smallest router name wins,
// making the output deterministic. The route's gateway is the neighbor's
// address on the shared link and the local interface is R's end of it.
func ComputeRoutes(m *Model) (*Routes, error) {
	if !m.Finalized() {
		return nil, fmt.Errorf("compute routes: model not finalized")
	}
	g, ids, routers := m.routerGraph()
	hops := path.DijkstraAllPaths(g)

	out := &Routes{
		Routers: make(map[string]RoutingTable, len(routers)),
		Hosts:   make(map[string]DefaultRoute),
	}
	for _, r := range routers {
		table := RoutingTable{}
		for _, s := range m.Segments() {
			target := s.Router.Node
			if target == r {
				continue // directly attached, no static route needed
			}
			rt, err := nextHopRoute(m, &hops, ids, r, s)
			if err != nil {
				return nil, err
			}
			table = append(table, rt)
		}
		out.Routers[r.Name] = table
	}
	for _, s := range m.Segments() {
		for _, h := range s.Hosts {
			out.Hosts[h.Node.Name] = DefaultRoute{Gateway: s.Router.Addr.Addr()}
		}
	}
	return out, nil
}

// nextHopRoute picks the route from r toward segment s.
func nextHopRoute(m *Model, hops *path.AllShortest, ids map[string]int64, r *Node, s *Segment) (Route, error) {
	target := s.Router.Node
	total := hops.Weight(ids[r.Name], ids[target.Name])
	if math.IsInf(total, 1) {
		// Finalize accepted this topology, so a missing path means the
		// model was corrupted after validation.
		return Route{}, &UnreachableSegmentError{Router: r.Name, Segment: s.Name}
	}
	neighbors, _ := m.Neighbors(r)
	for _, n := range neighbors { // name order: deterministic tie-break
		if hops.Weight(ids[n.Name], ids[target.Name]) != total-1 {
			continue
		}
		local, remote := linkBetween(r, n)
		return Route{
			Dest:      s.Subnet(),
			Gateway:   remote.Addr.Addr(),
			Interface: local.Name,
		}, nil
	}
	return Route{}, &UnreachableSegmentError{Router: r.Name, Segment: s.Name}
}

// linkBetween returns r's interface on its first point-to-point link to n
// and the corresponding remote interface.
func linkBetween(r, n *Node) (local, remote *Interface) {
	for _, ifc := range r.Interfaces {
		if ifc.Link == nil || !ifc.Link.P2P {
			continue
		}
		peer := ifc.Link.Peer(ifc)
		if peer.Node == n {
			return ifc, peer
		}
	}
	return nil, nil
}
