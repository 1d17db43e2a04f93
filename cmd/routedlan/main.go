package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/gpt5405/routedlan"
	"github.com/gpt5405/routedlan/emu"
	"github.com/spf13/cobra"
)

func main() {
	if err := root().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// root returns the root cobra command.
func root() (cmd *cobra.Command) {
	cmd = &cobra.Command{
		Use:           "routedlan",
		Short:         "Compiles routed multi-LAN topologies into device configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(example())
	cmd.AddCommand(check())
	cmd.AddCommand(routes())
	cmd.AddCommand(emit())
	cmd.AddCommand(up())
	cmd.AddCommand(down())
	return
}

// loadSpec reads the topology file, falling back to the built-in
// reference topology when no file is given.
func loadSpec(path string) (routedlan.Spec, error) {
	if path == "" {
		return routedlan.DefaultSpec(), nil
	}
	return routedlan.LoadSpec(path)
}

// specFlag registers the shared -f flag.
func specFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "topology", "f", "",
		"topology YAML file (default: built-in three-LAN triangle)")
}

// compile builds, validates and routes the topology in one pass.
func compile(path string) (*routedlan.Model, *routedlan.Routes, error) {
	spec, err := loadSpec(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := routedlan.BuildTopology(spec)
	if err != nil {
		return nil, nil, err
	}
	r, err := routedlan.ComputeRoutes(m)
	if err != nil {
		return nil, nil, err
	}
	return m, r, nil
}

// example returns the example cobra command.
func example() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Prints the built-in reference topology as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeYAML(routedlan.DefaultSpec())
		},
	}
}

// check returns the check cobra command.
func check() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validates a topology without emitting configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, r, err := compile(path)
			if err != nil {
				return err
			}
			nroutes := 0
			for _, t := range r.Routers {
				nroutes += len(t)
			}
			fmt.Printf("ok: %d routers, %d segments, %d static routes, %d hosts\n",
				len(m.Routers()), len(m.Segments()), nroutes, len(r.Hosts))
			return nil
		},
	}
	specFlag(cmd, &path)
	return cmd
}

// routes returns the routes cobra command.
func routes() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Prints the computed routing tables and default gateways",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, r, err := compile(path)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "Router\tDestination\tGateway\tInterface")
			fmt.Fprintln(w, "------\t-----------\t-------\t---------")
			for _, name := range sortedKeys(r.Routers) {
				for _, rt := range r.Routers[name] {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, rt.Dest, rt.Gateway, rt.Interface)
				}
			}
			fmt.Fprintln(w, "\nHost\tDefault gateway\t\t")
			fmt.Fprintln(w, "----\t---------------\t\t")
			for _, name := range sortedKeys(r.Hosts) {
				fmt.Fprintf(w, "%s\t%s\t\t\n", name, r.Hosts[name].Gateway)
			}
			return w.Flush()
		},
	}
	specFlag(cmd, &path)
	return cmd
}

// emit returns the emit cobra command.
func emit() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Prints the full per-node configuration plan as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, r, err := compile(path)
			if err != nil {
				return err
			}
			p, err := routedlan.Emit(m, r)
			if err != nil {
				return err
			}
			return writeYAML(p)
		},
	}
	specFlag(cmd, &path)
	return cmd
}

// up returns the up cobra command.
func up() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Builds the network in namespaces, runs until interrupted, then tears down",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, r, err := compile(path)
			if err != nil {
				return err
			}
			em, err := routedlan.NewEmitter(m, r)
			if err != nil {
				return err
			}
			p, err := routedlan.Emit(m, r)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := emu.NewNetns()
			s.Log = func(format string, a ...any) {
				fmt.Fprintf(os.Stderr, format+"\n", a...)
			}
			handles, err := emu.Apply(ctx, s, p)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "network up; interrupt to tear down")
			<-ctx.Done()
			stop()

			steps, err := em.Teardown()
			if err != nil {
				return err
			}
			ctx = context.Background()
			if err := emu.Run(ctx, s, handles, steps); err != nil {
				fmt.Fprintf(os.Stderr, "teardown: %v\n", err)
			}
			return s.Cleanup(ctx, nodeNames(m))
		},
	}
	specFlag(cmd, &path)
	return cmd
}

// down returns the down cobra command, which removes leftover namespaces
// from a run that did not tear down cleanly.
func down() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Deletes the topology's namespaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := loadSpec(path)
			if err != nil {
				return err
			}
			m, err := routedlan.BuildTopology(spec)
			if err != nil {
				return err
			}
			s := emu.NewNetns()
			s.Log = func(format string, a ...any) {
				fmt.Fprintf(os.Stderr, format+"\n", a...)
			}
			return s.Cleanup(context.Background(), nodeNames(m))
		},
	}
	specFlag(cmd, &path)
	return cmd
}

func nodeNames(m *routedlan.Model) []string {
	var names []string
	for _, n := range m.Nodes() {
		names = append(names, n.Name)
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeYAML(v any) error {
	data, err := yaml.MarshalWithOptions(v, yaml.IndentSequence(true))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
