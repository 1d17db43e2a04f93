package emu

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/gpt5405/routedlan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubstrate records every call; Execute answers are scripted by fail.
type fakeSubstrate struct {
	mu    sync.Mutex
	nodes []string
	links []string
	cmds  map[string][]string
	fail  map[string]int // command -> exit code
}

func newFake() *fakeSubstrate {
	return &fakeSubstrate{cmds: make(map[string][]string)}
}

func (f *fakeSubstrate) CreateNode(_ context.Context, name string, role routedlan.Role) (NodeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = append(f.nodes, fmt.Sprintf("%s/%s", name, role))
	return NodeHandle(name), nil
}

func (f *fakeSubstrate) CreateLink(_ context.Context, a, b Endpoint) (LinkHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := fmt.Sprintf("%s.%s-%s.%s", a.Node, a.Interface, b.Node, b.Interface)
	f.links = append(f.links, l)
	return LinkHandle(l), nil
}

func (f *fakeSubstrate) Execute(_ context.Context, n NodeHandle, command string) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds[string(n)] = append(f.cmds[string(n)], command)
	if code, ok := f.fail[command]; ok {
		return "boom", code, nil
	}
	return "", 0, nil
}

func referencePlan(t *testing.T) (*routedlan.Model, *routedlan.Plan) {
	t.Helper()
	m, err := routedlan.BuildTopology(routedlan.DefaultSpec())
	require.NoError(t, err)
	r, err := routedlan.ComputeRoutes(m)
	require.NoError(t, err)
	p, err := routedlan.Emit(m, r)
	require.NoError(t, err)
	return m, p
}

func TestApply(t *testing.T) {
	_, p := referencePlan(t)
	f := newFake()
	handles, err := Apply(context.Background(), f, p)
	require.NoError(t, err)

	// 9 plan nodes + 3 switches, 12 links.
	assert.Len(t, f.nodes, 12)
	assert.Contains(t, f.nodes, "rA/router")
	assert.Contains(t, f.nodes, "s1/switch")
	assert.Contains(t, f.nodes, "hC2/host")
	assert.Len(t, f.links, 12)
	assert.Len(t, handles, 12)

	// Per-node command order survives the concurrent dispatch: addresses
	// first, then forwarding, then routes.
	rA := f.cmds["rA"]
	require.Len(t, rA, 9)
	assert.Equal(t, "ip addr add 20.10.172.129/26 dev rA-eth1", rA[0])
	assert.Equal(t, "sysctl -w net.ipv4.ip_forward=1", rA[6])
	assert.Contains(t, rA[8], "ip route add")

	hB1 := f.cmds["hB1"]
	require.Len(t, hB1, 3)
	assert.Equal(t, "ip route add default via 20.10.172.1", hB1[2])
}

func TestApplyCommandFailure(t *testing.T) {
	_, p := referencePlan(t)
	f := newFake()
	f.fail = map[string]int{"sysctl -w net.ipv4.ip_forward=1": 1}
	_, err := Apply(context.Background(), f, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Contains(t, err.Error(), "boom")
}

func TestApplyStopsNodeAfterFailure(t *testing.T) {
	_, p := referencePlan(t)
	f := newFake()
	f.fail = map[string]int{"ip link set rC-eth1 up": 2}
	_, err := Apply(context.Background(), f, p)
	require.Error(t, err)
	// rC's list stops at the failed command; no later rC command ran.
	rC := f.cmds["rC"]
	require.NotEmpty(t, rC)
	assert.Equal(t, "ip link set rC-eth1 up", rC[len(rC)-1])
}

func TestRunTeardown(t *testing.T) {
	m, p := referencePlan(t)
	f := newFake()
	handles, err := Apply(context.Background(), f, p)
	require.NoError(t, err)

	r, err := routedlan.ComputeRoutes(m)
	require.NoError(t, err)
	e, err := routedlan.NewEmitter(m, r)
	require.NoError(t, err)
	steps, err := e.Teardown()
	require.NoError(t, err)

	require.NoError(t, Run(context.Background(), f, handles, steps))
	for _, router := range []string{"rA", "rB", "rC"} {
		cmds := f.cmds[router]
		assert.Equal(t, "sysctl -w net.ipv4.ip_forward=0", cmds[len(cmds)-1], router)
	}
}

func TestRunUnknownNode(t *testing.T) {
	f := newFake()
	err := Run(context.Background(), f, map[string]NodeHandle{},
		[]routedlan.Step{{Node: "ghost", Cmd: "true"}})
	require.Error(t, err)
}
