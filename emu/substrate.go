// Package emu applies compiled network plans to an emulation substrate.
// The substrate owns everything the core compiler does not: creating
// nodes and links, and running shell-level configuration commands on a
// node.
package emu

import (
	"context"

	"github.com/gpt5405/routedlan"
)

// NodeHandle identifies a created node within a substrate.
type NodeHandle string

// LinkHandle identifies a created link within a substrate.
type LinkHandle string

// Endpoint names one end of a link.
type Endpoint struct {
	Node      NodeHandle
	Interface string
}

// Substrate is the emulation backend the compiler's output is applied to.
type Substrate interface {
	// CreateNode instantiates a node of the given role.
	CreateNode(ctx context.Context, name string, role routedlan.Role) (NodeHandle, error)

	// CreateLink wires two endpoints together.
	CreateLink(ctx context.Context, a, b Endpoint) (LinkHandle, error)

	// Execute runs a command on a node, returning its stdout and exit
	// code. A non-nil error means the command could not be run at all.
	Execute(ctx context.Context, n NodeHandle, command string) (stdout string, exitCode int, err error)
}
