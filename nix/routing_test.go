package nix_test

import (
	"errors"
	"net/netip"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nssim/netmodel"
	"github.com/sarchlab/nssim/nix"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
)

func buildNetwork(s sim.Simulator, description string) (*netmodel.Network, *nix.Domain) {
	network := netmodel.NewNetwork(s)

	t, err := netmodel.DecodeTopology(strings.NewReader(description), netmodel.FormatYAML)
	Expect(err).NotTo(HaveOccurred())
	Expect(t.Build(network)).To(Succeed())

	domain := nix.NewDomain(network)
	domain.InstallAll()

	return network, domain
}

func names(nodes []*netmodel.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Name())
	}
	return out
}

// Links are numbered from 1 in the automatic addresses, so n4 is 10.1.4.2
// and n5 is 10.1.5.1.
const lineTopology = `
nodes: [n0, n1, n2, n3, n4, n5, n6]
links:
  - {nodes: [n0, n1], delay: 1ms}
  - {nodes: [n1, n2], delay: 1ms}
  - {nodes: [n2, n3], delay: 1ms}
  - {nodes: [n3, n4], delay: 1ms}
  - {nodes: [n5, n6], delay: 1ms}
`

// n0 reaches n4 in two hops through n5, or in four through n1, n2, n3.
const ringTopology = `
nodes: [n0, n1, n2, n3, n4, n5]
links:
  - {name: a, nodes: [n0, n1]}
  - {name: b, nodes: [n1, n2]}
  - {name: c, nodes: [n2, n3]}
  - {name: d, nodes: [n3, n4]}
  - {name: e, nodes: [n0, n5]}
  - {name: f, nodes: [n5, n4]}
`

// a and b both join n0 and n1.
const parallelTopology = `
nodes: [n0, n1, n2]
links:
  - {name: a, nodes: [n0, n1], delay: 1ms}
  - {name: b, nodes: [n0, n1], delay: 1ms}
  - {name: c, nodes: [n1, n2], delay: 1ms}
`

const bridgedTopology = `
nodes: [n0, sw, n1, n2]
links:
  - {name: up, nodes: [n0, sw], delay: 1ms}
  - {name: lan, nodes: [sw, n1, n2], delay: 1ms}
bridges:
  - {node: sw, links: [up, lan]}
`

var _ = Describe("Routing", func() {
	var s sim.Simulator

	BeforeEach(func() {
		s = sim.MakeBuilder().Build()
	})

	AfterEach(func() {
		s.Destroy()
	})

	Context("on a line", func() {
		var (
			network *netmodel.Network
			domain  *nix.Domain
			n0, n4  *netmodel.Node
			r0      *nix.Routing
			dstN4   = netip.MustParseAddr("10.1.4.2")
			dstN5   = netip.MustParseAddr("10.1.5.1")
		)

		BeforeEach(func() {
			network, domain = buildNetwork(s, lineTopology)
			n0 = network.NodeByName("n0")
			n4 = network.NodeByName("n4")
			r0 = domain.Routing(n0)
		})

		It("should encode the path hop by hop", func() {
			v, err := r0.Resolve(dstN4)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.TotalBits()).To(Equal(uint32(4)))

			path, err := domain.Path(n0, dstN4)
			Expect(err).NotTo(HaveOccurred())
			Expect(names(path)).To(Equal([]string{"n0", "n1", "n2", "n3", "n4"}))
		})

		It("should forward a packet along the path", func() {
			var arrived []*netmodel.Packet
			n4.OnReceive(func(p *netmodel.Packet) { arrived = append(arrived, p) })

			p := network.NewPacket(dstN4, 100)
			Expect(n0.Send(p)).To(Succeed())
			s.Run()

			Expect(arrived).To(Equal([]*netmodel.Packet{p}))
			Expect(p.Hops).To(Equal([]netmodel.NodeID{0, 1, 2, 3, 4}))
			Expect(p.NixVector().RemainingBits()).To(BeZero())
			Expect(p.Src).To(Equal(netip.MustParseAddr("10.1.1.1")))
			Expect(p.TTL).To(Equal(netmodel.DefaultTTL - 3))
			Expect(s.Now()).To(Equal(simtime.MilliSeconds(4)))
		})

		It("should report unreachable destinations", func() {
			_, err := r0.Resolve(dstN5)
			Expect(errors.Is(err, nix.ErrNoPath)).To(BeTrue())

			_, err = r0.Resolve(netip.MustParseAddr("192.168.0.1"))
			Expect(errors.Is(err, nix.ErrNoPath)).To(BeTrue())

			var dropped []error
			n0.OnDrop(func(_ *netmodel.Packet, err error) { dropped = append(dropped, err) })

			err = n0.Send(network.NewPacket(dstN5, 10))
			Expect(errors.Is(err, nix.ErrNoRoute)).To(BeTrue())
			Expect(errors.Is(err, nix.ErrNoPath)).To(BeTrue())
			Expect(dropped).To(HaveLen(1))
			Expect(r0.Stats().NoRoute).To(Equal(uint64(1)))
		})

		It("should serve repeated lookups from the caches", func() {
			_, err := r0.ResolveRoute(dstN4, nil)
			Expect(err).NotTo(HaveOccurred())
			route, err := r0.ResolveRoute(dstN4, nil)
			Expect(err).NotTo(HaveOccurred())

			Expect(route.Gateway).To(Equal(netip.MustParseAddr("10.1.1.2")))
			Expect(route.Source).To(Equal(netip.MustParseAddr("10.1.1.1")))
			Expect(route.OutputDevice).To(BeIdenticalTo(n0.Device(1)))

			stats := r0.Stats()
			Expect(stats.NixMisses).To(Equal(uint64(1)))
			Expect(stats.NixHits).To(Equal(uint64(1)))
			Expect(stats.RouteMisses).To(Equal(uint64(1)))
			Expect(stats.RouteHits).To(Equal(uint64(1)))
			Expect(r0.NumCachedVectors()).To(Equal(1))
			Expect(r0.NumCachedRoutes()).To(Equal(1))
		})

		It("should recompute after a link goes down", func() {
			_, err := r0.Resolve(dstN4)
			Expect(err).NotTo(HaveOccurred())
			Expect(domain.IsDirty()).To(BeFalse())

			network.Channels()[1].SetUp(false)
			Expect(domain.IsDirty()).To(BeTrue())

			_, err = r0.Resolve(dstN4)
			Expect(errors.Is(err, nix.ErrNoPath)).To(BeTrue())
			Expect(domain.IsDirty()).To(BeFalse())
			Expect(r0.NumCachedVectors()).To(BeZero())

			network.Channels()[1].SetUp(true)

			path, err := domain.Path(n0, dstN4)
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(HaveLen(5))
		})

		It("should flush each node lazily", func() {
			r1 := domain.Routing(network.NodeByName("n1"))

			_, err := r0.Resolve(dstN4)
			Expect(err).NotTo(HaveOccurred())
			_, err = r1.Resolve(dstN4)
			Expect(err).NotTo(HaveOccurred())

			flushes := r1.Stats().Flushes

			network.NodeByName("n6").Device(1).SetDown()

			_, err = r0.Resolve(dstN4)
			Expect(err).NotTo(HaveOccurred())
			Expect(r1.NumCachedVectors()).To(Equal(1))
			Expect(r1.Stats().Flushes).To(Equal(flushes))

			_, err = r1.Resolve(dstN4)
			Expect(err).NotTo(HaveOccurred())
			Expect(r1.Stats().Flushes).To(Equal(flushes + 1))
			Expect(r1.Stats().NixMisses).To(Equal(uint64(2)))
		})

		It("should rebuild vectors made stale in flight", func() {
			var arrived int
			n4.OnReceive(func(*netmodel.Packet) { arrived++ })

			Expect(n0.Send(network.NewPacket(dstN4, 10))).To(Succeed())

			s.Schedule(simtime.MicroSeconds(1500), func() {
				network.NodeByName("n6").Device(1).AddAddress(
					netip.MustParsePrefix("10.7.0.1/24"))
			})

			s.Run()

			Expect(arrived).To(Equal(1))
			Expect(domain.Routing(network.NodeByName("n2")).Stats().NixMisses).
				To(Equal(uint64(1)))
		})

		It("should answer local destinations through the loopback", func() {
			own := netip.MustParseAddr("10.1.1.1")

			route, err := r0.ResolveRoute(own, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(route.OutputDevice).To(BeIdenticalTo(n0.Loopback()))
			Expect(route.Source).To(Equal(own))

			route, err = r0.ResolveRoute(netip.MustParseAddr("127.0.0.1"), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(route.OutputDevice).To(BeIdenticalTo(n0.Loopback()))
			Expect(r0.Stats().NixMisses).To(BeZero())

			v, err := r0.GetNixVector(own, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.TotalBits()).To(BeZero())
		})

		It("should report vectors that run out of bits", func() {
			r1 := domain.Routing(network.NodeByName("n1"))
			_, err := r1.Resolve(dstN4)
			Expect(err).NotTo(HaveOccurred())

			empty := nix.NewNixVector()
			empty.SetEpoch(domain.Epoch())

			p := network.NewPacket(dstN4, 10)
			p.SetNixVector(empty)

			var failure error
			handled := r1.RouteInput(p, network.NodeByName("n1").Device(1), netmodel.InputCallbacks{
				Forward: func(*netmodel.Route, *netmodel.Packet) { Fail("forwarded") },
				Error:   func(_ *netmodel.Packet, err error) { failure = err },
			})

			Expect(handled).To(BeTrue())
			Expect(errors.Is(failure, nix.ErrInsufficientBits)).To(BeTrue())
		})

		It("should print the routing path", func() {
			var out strings.Builder

			Expect(r0.PrintRoutingPath(dstN4, &out)).To(Succeed())

			Expect(out.String()).To(ContainSubstring("Route path from n0 to 10.1.4.2"))
			Expect(out.String()).To(ContainSubstring("n0 (10.1.1.1) ---> n1 (10.1.1.2)"))
			Expect(out.String()).To(ContainSubstring("n3 (10.1.4.1) ---> n4 (10.1.4.2)"))
		})
	})

	Context("on a ring", func() {
		var (
			network *netmodel.Network
			domain  *nix.Domain
			n0      *netmodel.Node
			dst     = netip.MustParseAddr("10.1.6.2")
		)

		BeforeEach(func() {
			network, domain = buildNetwork(s, ringTopology)
			n0 = network.NodeByName("n0")
		})

		It("should switch to the alternate path", func() {
			path, err := domain.Path(n0, dst)
			Expect(err).NotTo(HaveOccurred())
			Expect(names(path)).To(Equal([]string{"n0", "n5", "n4"}))

			network.Channels()[5].SetUp(false)

			path, err = domain.Path(n0, dst)
			Expect(err).NotTo(HaveOccurred())
			Expect(names(path)).To(Equal([]string{"n0", "n1", "n2", "n3", "n4"}))
			Expect(len(path) - 1).To(Equal(len(network.ShortestHops(n0, network.NodeByName("n4"))) - 1))
		})

		It("should honor a requested output device", func() {
			r0 := domain.Routing(n0)
			viaN1 := n0.Device(1)

			route, err := r0.ResolveRoute(dst, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(route.OutputDevice).To(BeIdenticalTo(n0.Device(2)))

			route, err = r0.ResolveRoute(dst, viaN1)
			Expect(err).NotTo(HaveOccurred())
			Expect(route.OutputDevice).To(BeIdenticalTo(viaN1))
			Expect(route.Gateway).To(Equal(netip.MustParseAddr("10.1.1.2")))
			Expect(r0.Stats().RouteMisses).To(Equal(uint64(2)))
		})

		It("should agree with the graph shortest hops", func() {
			for _, from := range network.Nodes() {
				for _, to := range network.Nodes() {
					path, err := domain.Path(from, to.PrimaryAddress())
					Expect(err).NotTo(HaveOccurred())
					Expect(path).To(HaveLen(len(network.ShortestHops(from, to))))
				}
			}
		})
	})

	Context("over parallel links", func() {
		var (
			network *netmodel.Network
			domain  *nix.Domain
			n0, n2  *netmodel.Node
			dst     = netip.MustParseAddr("10.1.3.2")
		)

		BeforeEach(func() {
			network, domain = buildNetwork(s, parallelTopology)
			n0 = network.NodeByName("n0")
			n2 = network.NodeByName("n2")
		})

		It("should take the gateway on the requested output device", func() {
			r0 := domain.Routing(n0)
			viaA, viaB := n0.Device(1), n0.Device(2)

			route, err := r0.ResolveRoute(dst, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(route.OutputDevice).To(BeIdenticalTo(viaA))
			Expect(route.Gateway).To(Equal(netip.MustParseAddr("10.1.1.2")))

			route, err = r0.ResolveRoute(dst, viaB)
			Expect(err).NotTo(HaveOccurred())
			Expect(route.OutputDevice).To(BeIdenticalTo(viaB))
			Expect(route.Gateway).To(Equal(netip.MustParseAddr("10.1.2.2")))
			Expect(route.Source).To(Equal(netip.MustParseAddr("10.1.2.1")))
		})

		It("should send through the requested output device", func() {
			var arrived int
			n2.OnReceive(func(*netmodel.Packet) { arrived++ })

			Expect(n0.SendVia(network.NewPacket(dst, 10), n0.Device(2))).To(Succeed())
			Expect(n0.SendVia(network.NewPacket(dst, 10), n0.Device(1))).To(Succeed())
			s.Run()

			Expect(arrived).To(Equal(2))
			Expect(n0.Dropped()).To(BeZero())
		})

		It("should fall back to the other link when one is down", func() {
			n0.Device(1).Channel().SetUp(false)

			route, err := domain.Routing(n0).ResolveRoute(dst, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(route.OutputDevice).To(BeIdenticalTo(n0.Device(2)))
			Expect(route.Gateway).To(Equal(netip.MustParseAddr("10.1.2.2")))
		})
	})

	Context("across a bridge", func() {
		It("should treat bridged ports as direct neighbors", func() {
			network, domain := buildNetwork(s, bridgedTopology)
			n0 := network.NodeByName("n0")
			n2 := network.NodeByName("n2")

			path, err := domain.Path(n0, n2.PrimaryAddress())
			Expect(err).NotTo(HaveOccurred())
			Expect(names(path)).To(Equal([]string{"n0", "n2"}))

			var arrived []simtime.Time
			n2.OnReceive(func(*netmodel.Packet) { arrived = append(arrived, s.Now()) })

			p := network.NewPacket(n2.PrimaryAddress(), 10)
			Expect(n0.Send(p)).To(Succeed())
			s.Run()

			Expect(arrived).To(Equal([]simtime.Time{simtime.MilliSeconds(2)}))
			Expect(p.Hops).To(Equal([]netmodel.NodeID{n0.ID(), n2.ID()}))
		})

		It("should find no path through a bridge that is down", func() {
			network, domain := buildNetwork(s, bridgedTopology)
			n0 := network.NodeByName("n0")
			n2 := network.NodeByName("n2")

			var bridge *netmodel.Device
			for _, d := range network.NodeByName("sw").Devices() {
				if d.IsBridge() {
					bridge = d
				}
			}
			Expect(bridge).NotTo(BeNil())

			bridge.SetDown()

			_, err := domain.Path(n0, n2.PrimaryAddress())
			Expect(errors.Is(err, nix.ErrNoPath)).To(BeTrue())

			err = n0.Send(network.NewPacket(n2.PrimaryAddress(), 10))
			Expect(errors.Is(err, nix.ErrNoRoute)).To(BeTrue())
			Expect(n0.Dropped()).To(Equal(uint64(1)))

			bridge.SetUp()

			path, err := domain.Path(n0, n2.PrimaryAddress())
			Expect(err).NotTo(HaveOccurred())
			Expect(names(path)).To(Equal([]string{"n0", "n2"}))
		})
	})
})
