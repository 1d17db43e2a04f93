package emu

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gpt5405/routedlan"
)

// Apply realizes a plan on the substrate: all nodes, then all links, then
// every node's command list. Command lists of different nodes are
// independent of each other, so they are dispatched concurrently; within
// one node the order is preserved because later commands depend on
// earlier ones. The returned handles can be passed to Run for later
// steps, such as teardown.
func Apply(ctx context.Context, s Substrate, p *routedlan.Plan) (map[string]NodeHandle, error) {
	handles := make(map[string]NodeHandle)
	for _, n := range p.Nodes {
		h, err := s.CreateNode(ctx, n.Name, routedlan.Role(n.Role))
		if err != nil {
			return nil, err
		}
		handles[n.Name] = h
	}
	for _, sw := range p.Switches {
		h, err := s.CreateNode(ctx, sw.Name, routedlan.RoleSwitch)
		if err != nil {
			return nil, err
		}
		handles[sw.Name] = h
	}

	for _, n := range p.Nodes {
		for _, ifc := range n.Interfaces {
			peerNode, peerIf, ok := strings.Cut(ifc.Args, "#")
			if !ok {
				return nil, fmt.Errorf("node %s: malformed link args %q", n.Name, ifc.Args)
			}
			peer, ok := handles[peerNode]
			if !ok {
				return nil, fmt.Errorf("node %s: link peer %s does not exist", n.Name, peerNode)
			}
			_, err := s.CreateLink(ctx,
				Endpoint{Node: handles[n.Name], Interface: ifc.Name},
				Endpoint{Node: peer, Interface: peerIf})
			if err != nil {
				return nil, err
			}
		}
	}

	var wg sync.WaitGroup
	errc := make(chan error, len(p.NodeConfigs))
	for _, nc := range p.NodeConfigs {
		wg.Add(1)
		go func(nc routedlan.NodeConfig) {
			defer wg.Done()
			for _, c := range nc.Cmds {
				if err := execute(ctx, s, handles[nc.Name], nc.Name, c.Cmd); err != nil {
					errc <- err
					return
				}
			}
		}(nc)
	}
	wg.Wait()
	close(errc)
	if err := <-errc; err != nil {
		return nil, err
	}
	return handles, nil
}

// Run executes a flattened step list sequentially, for ordered phases
// like teardown.
func Run(ctx context.Context, s Substrate, handles map[string]NodeHandle, steps []routedlan.Step) error {
	for _, st := range steps {
		h, ok := handles[st.Node]
		if !ok {
			return fmt.Errorf("step on unknown node %s", st.Node)
		}
		if err := execute(ctx, s, h, st.Node, st.Cmd); err != nil {
			return err
		}
	}
	return nil
}

func execute(ctx context.Context, s Substrate, h NodeHandle, node, cmd string) error {
	out, code, err := s.Execute(ctx, h, cmd)
	if err != nil {
		return fmt.Errorf("%s: %q: %w", node, cmd, err)
	}
	if code != 0 {
		return fmt.Errorf("%s: %q: exit status %d: %s", node, cmd, code, strings.TrimSpace(out))
	}
	return nil
}
