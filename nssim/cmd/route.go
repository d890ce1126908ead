package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/netip"

	"github.com/spf13/cobra"

	"github.com/sarchlab/nssim/metrics"
	"github.com/sarchlab/nssim/monitoring"
	"github.com/sarchlab/nssim/netmodel"
	"github.com/sarchlab/nssim/nix"
	"github.com/sarchlab/nssim/simtime"
	"github.com/sarchlab/nssim/tracing"
)

var (
	routeTopology string
	routeFrom     string
	routeTo       string
	routeSize     int
	routeCount    int
	routeHorizon  string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route packets over a topology with Nix-vector routing",
	Long: `Loads a topology, prints the Nix-vector path from one node to a ` +
		`destination, then sends packets along it and reports when they ` +
		`arrive. The destination is an address or a node name.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if !cmd.Flags().Changed("topology") {
			routeTopology = cfg.Topology
		}
		if routeTopology == "" {
			return errors.New("no topology given")
		}

		ss, err := newSession(cmd, cfg)
		if err != nil {
			return err
		}
		defer ss.close()

		return runRoute(cmd.OutOrStdout(), ss)
	},
}

func init() {
	flags := routeCmd.Flags()
	flags.StringVar(&routeTopology, "topology", "", "topology file, YAML or JSON")
	flags.StringVar(&routeFrom, "from", "", "name of the source node")
	flags.StringVar(&routeTo, "to", "", "destination address or node name")
	flags.IntVar(&routeSize, "size", 1000, "packet size in bytes")
	flags.IntVar(&routeCount, "count", 1, "number of packets to send")
	flags.StringVar(&routeHorizon, "horizon", "1s",
		"simulated time after which a realtime run stops")

	_ = routeCmd.MarkFlagRequired("from")
	_ = routeCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(routeCmd)
}

func resolveDestination(n *netmodel.Network, to string) (netip.Addr, *netmodel.Node, error) {
	if addr, err := netip.ParseAddr(to); err == nil {
		return addr, n.NodeByAddress(addr), nil
	}

	node := n.NodeByName(to)
	if node == nil {
		return netip.Addr{}, nil, fmt.Errorf("unknown destination %q", to)
	}

	addr := node.PrimaryAddress()
	if !addr.IsValid() {
		return netip.Addr{}, nil, fmt.Errorf("node %s has no address", node)
	}

	return addr, node, nil
}

func runRoute(w io.Writer, ss *session) error {
	horizon, err := simtime.Parse(routeHorizon)
	if err != nil {
		return err
	}

	network := netmodel.NewNetwork(ss.sim)
	if err := netmodel.LoadTopology(routeTopology, network); err != nil {
		return err
	}

	domain := nix.NewDomain(network)
	domain.InstallAll()

	if err := ss.registry.Register(metrics.NewNixCollector(domain)); err != nil {
		return err
	}

	if ss.recorder != nil {
		tracing.WatchNetwork(network, ss.recorder)
	}

	var bar *monitoring.ProgressBar
	if ss.monitor != nil {
		ss.monitor.RegisterNetwork(network, domain)
		bar = ss.monitor.CreateProgressBar("packets", uint64(routeCount))
		defer ss.monitor.CompleteProgressBar(bar)
	}

	from := network.NodeByName(routeFrom)
	if from == nil {
		return fmt.Errorf("unknown node %q", routeFrom)
	}

	dst, dstNode, err := resolveDestination(network, routeTo)
	if err != nil {
		return err
	}

	if err := domain.PrintRoutingPath(from, dst, w); err != nil {
		return err
	}

	if dstNode != nil {
		fmt.Fprintf(w, "Shortest path: %d hops\n",
			len(network.ShortestHops(from, dstNode))-1)
	}

	arrived := 0
	for _, node := range network.Nodes() {
		node := node
		node.OnReceive(func(p *netmodel.Packet) {
			arrived++
			fmt.Fprintf(w, "Packet %d arrived at %s at %s after %d hops\n",
				p.UID, p.Dst, ss.sim.Now(), len(p.Hops)-1)
			if bar != nil {
				bar.Finish(1)
			}
		})
		node.OnDrop(func(p *netmodel.Packet, err error) {
			fmt.Fprintf(w, "Packet %d dropped at %s: %v\n", p.UID, node, err)
			if bar != nil {
				bar.Finish(1)
			}
		})
	}

	for i := 0; i < routeCount; i++ {
		p := network.NewPacket(dst, routeSize)
		ss.sim.Schedule(simtime.Zero(), func() {
			if bar != nil {
				bar.Start(1)
			}
			_ = from.Send(p)
		})
	}

	ss.run(horizon)

	stats := domain.Stats()
	fmt.Fprintf(w, "Delivered %d of %d packets, nix cache hits %d, misses %d\n",
		arrived, routeCount, stats.NixHits, stats.NixMisses)

	return nil
}
