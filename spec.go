package routedlan

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Spec is the declarative topology description. It is the single input of
// a run; the model and every derived table are rebuilt from it each
// invocation, nothing is persisted.
type Spec struct {
	Routers  []string      `yaml:"routers"`
	Segments []SegmentSpec `yaml:"segments"`
	Links    []LinkSpec    `yaml:"links"`
}

// SegmentSpec declares one LAN: its switch, the serving router with the
// gateway address that defines the subnet, and the hosts.
type SegmentSpec struct {
	Name    string     `yaml:"name"`
	Switch  string     `yaml:"switch,omitempty"`
	Router  string     `yaml:"router"`
	Gateway string     `yaml:"gateway"`
	Hosts   []HostSpec `yaml:"hosts"`
}

// HostSpec declares one host and its address on the segment.
type HostSpec struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// LinkSpec declares a point-to-point router link with its two end
// addresses, which share one subnet.
type LinkSpec struct {
	A     string `yaml:"a"`
	B     string `yaml:"b"`
	AddrA string `yaml:"addr_a"`
	AddrB string `yaml:"addr_b"`
}

// DefaultSpec returns the reference topology: three LANs, each behind one
// router, with the routers fully meshed by /30 point-to-point links.
func DefaultSpec() Spec {
	return Spec{
		Routers: []string{"rA", "rB", "rC"},
		Segments: []SegmentSpec{
			{
				Name: "A", Switch: "s1", Router: "rA", Gateway: "20.10.172.129/26",
				Hosts: []HostSpec{
					{Name: "hA1", Address: "20.10.172.130/26"},
					{Name: "hA2", Address: "20.10.172.131/26"},
				},
			},
			{
				Name: "B", Switch: "s2", Router: "rB", Gateway: "20.10.172.1/25",
				Hosts: []HostSpec{
					{Name: "hB1", Address: "20.10.172.2/25"},
					{Name: "hB2", Address: "20.10.172.3/25"},
				},
			},
			{
				Name: "C", Switch: "s3", Router: "rC", Gateway: "20.10.172.193/27",
				Hosts: []HostSpec{
					{Name: "hC1", Address: "20.10.172.194/27"},
					{Name: "hC2", Address: "20.10.172.195/27"},
				},
			},
		},
		Links: []LinkSpec{
			{A: "rA", B: "rB", AddrA: "10.0.10.1/30", AddrB: "10.0.10.2/30"},
			{A: "rB", B: "rC", AddrA: "10.0.20.1/30", AddrB: "10.0.20.2/30"},
			{A: "rC", B: "rA", AddrA: "10.0.30.1/30", AddrB: "10.0.30.2/30"},
		},
	}
}

// LoadSpec reads a topology file.
func LoadSpec(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, err
	}
	return ParseSpec(data)
}

// ParseSpec decodes a YAML topology description.
func ParseSpec(data []byte) (Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Spec{}, fmt.Errorf("parse topology: %w", err)
	}
	return s, nil
}

// BuildTopology constructs and finalizes a model from the spec. Segments
// are built before router links so that interface numbers come out in the
// conventional order (LAN interface first on each router).
func BuildTopology(spec Spec) (*Model, error) {
	m := NewModel()
	for _, r := range spec.Routers {
		if _, err := m.AddRouter(r); err != nil {
			return nil, err
		}
	}
	for i, ss := range spec.Segments {
		swName := ss.Switch
		if swName == "" {
			swName = fmt.Sprintf("s%d", i+1)
		}
		if _, err := m.AddSegment(ss.Name, swName); err != nil {
			return nil, err
		}
		if _, err := m.AttachRouter(ss.Name, ss.Router, ss.Gateway); err != nil {
			return nil, err
		}
		for _, h := range ss.Hosts {
			if _, err := m.AttachHost(ss.Name, h.Name, h.Address); err != nil {
				return nil, err
			}
		}
	}
	for _, l := range spec.Links {
		if _, err := m.AddRouterLink(l.A, l.B, l.AddrA, l.AddrB); err != nil {
			return nil, err
		}
	}
	if err := m.Finalize(); err != nil {
		return nil, err
	}
	return m, nil
}
