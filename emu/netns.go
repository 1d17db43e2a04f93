package emu

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gpt5405/routedlan"
	"github.com/kballard/go-shellquote"
)

// bridgeName is the bridge device created inside every switch namespace.
const bridgeName = "br0"

// Netns is a Substrate backed by Linux network namespaces: one namespace
// per node, a bridge per switch, a veth pair per link. It shells out to
// ip(8) and requires the privileges to do so.
type Netns struct {
	// Log, if set, receives a line per executed system command.
	Log func(format string, a ...any)

	roles map[NodeHandle]routedlan.Role
}

// NewNetns returns a namespace substrate.
func NewNetns() *Netns {
	return &Netns{roles: make(map[NodeHandle]routedlan.Role)}
}

func (s *Netns) logf(format string, a ...any) {
	if s.Log != nil {
		s.Log(format, a...)
	}
}

// run executes a system command in the root namespace.
func (s *Netns) run(ctx context.Context, name string, arg ...string) error {
	c := exec.CommandContext(ctx, name, arg...)
	s.logf("%s", strings.Join(append([]string{name}, arg...), " "))
	out, err := c.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(out))
	}
	return nil
}

// CreateNode adds a namespace for the node, brings up its loopback and,
// for switches, creates the bridge that LAN links attach to.
func (s *Netns) CreateNode(ctx context.Context, name string, role routedlan.Role) (NodeHandle, error) {
	h := NodeHandle(name)
	if err := s.run(ctx, "ip", "netns", "add", name); err != nil {
		return "", fmt.Errorf("create node %s: %w", name, err)
	}
	if err := s.run(ctx, "ip", "netns", "exec", name, "ip", "link", "set", "lo", "up"); err != nil {
		return "", fmt.Errorf("create node %s: %w", name, err)
	}
	if role == routedlan.RoleSwitch {
		if err := s.run(ctx, "ip", "netns", "exec", name,
			"ip", "link", "add", "name", bridgeName, "type", "bridge"); err != nil {
			return "", fmt.Errorf("create switch %s: %w", name, err)
		}
		if err := s.run(ctx, "ip", "netns", "exec", name,
			"ip", "link", "set", bridgeName, "up"); err != nil {
			return "", fmt.Errorf("create switch %s: %w", name, err)
		}
	}
	s.roles[h] = role
	return h, nil
}

// CreateLink creates a veth pair with one end in each endpoint's
// namespace, brings both up, and enslaves switch-side ends to the bridge.
func (s *Netns) CreateLink(ctx context.Context, a, b Endpoint) (LinkHandle, error) {
	err := s.run(ctx, "ip", "link", "add", a.Interface, "netns", string(a.Node),
		"type", "veth", "peer", "name", b.Interface, "netns", string(b.Node))
	if err != nil {
		return "", fmt.Errorf("create link %s/%s: %w", a.Interface, b.Interface, err)
	}
	for _, ep := range []Endpoint{a, b} {
		if s.roles[ep.Node] == routedlan.RoleSwitch {
			if err := s.run(ctx, "ip", "netns", "exec", string(ep.Node),
				"ip", "link", "set", ep.Interface, "master", bridgeName); err != nil {
				return "", fmt.Errorf("attach %s to %s: %w", ep.Interface, bridgeName, err)
			}
		}
		if err := s.run(ctx, "ip", "netns", "exec", string(ep.Node),
			"ip", "link", "set", ep.Interface, "up"); err != nil {
			return "", fmt.Errorf("bring up %s: %w", ep.Interface, err)
		}
	}
	return LinkHandle(fmt.Sprintf("%s#%s-%s#%s", a.Node, a.Interface, b.Node, b.Interface)), nil
}

// Execute runs a command inside the node's namespace.
func (s *Netns) Execute(ctx context.Context, n NodeHandle, command string) (string, int, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return "", 0, fmt.Errorf("execute on %s: %w", n, err)
	}
	if len(argv) == 0 {
		return "", 0, fmt.Errorf("execute on %s: empty command", n)
	}
	args := append([]string{"netns", "exec", string(n)}, argv...)
	c := exec.CommandContext(ctx, "ip", args...)
	s.logf("%s: %s", n, command)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	err = c.Run()
	if ee, ok := err.(*exec.ExitError); ok {
		return stdout.String(), ee.ExitCode(), nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("execute on %s: %w", n, err)
	}
	return stdout.String(), 0, nil
}

// Cleanup deletes the namespaces of the named nodes. Errors are collected
// so one missing namespace does not leave the rest behind.
func (s *Netns) Cleanup(ctx context.Context, names []string) error {
	var firstErr error
	for _, name := range names {
		if err := s.run(ctx, "ip", "netns", "del", name); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cleanup %s: %w", name, err)
		}
	}
	return firstErr
}
