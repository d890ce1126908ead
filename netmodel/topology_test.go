package netmodel_test

import (
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nssim/netmodel"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
)

const bridgedTopology = `
nodes: [n0, n1, sw, n2, n3]
links:
  - name: wan
    nodes: [n0, n1]
    delay: 2ms
    rate: 5000000
  - name: left
    nodes: [n1, sw]
  - name: right
    nodes: [sw, n2, n3]
    addresses: [10.9.0.1/24, 10.9.0.2/24, 10.9.0.3/24]
bridges:
  - node: sw
    links: [left, right]
`

var _ = Describe("Topology", func() {
	var (
		s       sim.Simulator
		network *netmodel.Network
	)

	BeforeEach(func() {
		s = sim.MakeBuilder().Build()
		network = netmodel.NewNetwork(s)
	})

	AfterEach(func() {
		s.Destroy()
	})

	It("should build a YAML description", func() {
		t, err := netmodel.DecodeTopology(strings.NewReader(bridgedTopology), netmodel.FormatYAML)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Build(network)).To(Succeed())

		Expect(network.NumNodes()).To(Equal(5))
		Expect(network.Channels()).To(HaveLen(3))

		wan := network.Channels()[0]
		Expect(wan.Delay()).To(Equal(simtime.MilliSeconds(2)))
		Expect(wan.DataRate()).To(Equal(uint64(5000000)))

		n0 := network.NodeByName("n0")
		n1 := network.NodeByName("n1")
		sw := network.NodeByName("sw")
		n3 := network.NodeByName("n3")

		Expect(n0.Addresses()).To(Equal([]netip.Addr{netip.MustParseAddr("10.1.1.1")}))
		Expect(n1.Addresses()).To(Equal([]netip.Addr{
			netip.MustParseAddr("10.1.1.2"), netip.MustParseAddr("10.1.2.1"),
		}))
		Expect(sw.Addresses()).To(BeEmpty())
		Expect(network.NodeByAddress(netip.MustParseAddr("10.9.0.3"))).To(BeIdenticalTo(n3))

		bridge := sw.Device(sw.NumDevices() - 1)
		Expect(bridge.IsBridge()).To(BeTrue())
		Expect(bridge.Ports()).To(HaveLen(2))

		left := n1.Device(2)
		Expect(left.Channel().AdjacentDevices(left)).To(Equal([]*netmodel.Device{
			network.NodeByName("n2").Device(1), n3.Device(1),
		}))
	})

	It("should read JSON files", func() {
		dir := GinkgoT().TempDir()
		file := filepath.Join(dir, "topo.json")
		Expect(os.WriteFile(file, []byte(`{
			"nodes": ["a", "b"],
			"links": [{"nodes": ["a", "b"], "delay": "1us", "down": true}]
		}`), 0o644)).To(Succeed())

		Expect(netmodel.LoadTopology(file, network)).To(Succeed())

		Expect(network.NumNodes()).To(Equal(2))
		Expect(network.Channels()[0].IsUp()).To(BeFalse())
		Expect(network.Channels()[0].Delay()).To(Equal(simtime.MicroSeconds(1)))
	})

	DescribeTable("should reject bad descriptions",
		func(text string) {
			t, err := netmodel.DecodeTopology(strings.NewReader(text), netmodel.FormatYAML)
			if err == nil {
				err = t.Build(network)
			}

			Expect(errors.Is(err, netmodel.ErrBadTopology)).To(BeTrue())
		},
		Entry("unknown field", "nodes: [a]\nlinkz: []\n"),
		Entry("unknown node", "nodes: [a]\nlinks: [{nodes: [a, b]}]\n"),
		Entry("duplicated node", "nodes: [a, a]\n"),
		Entry("single ended link", "nodes: [a]\nlinks: [{nodes: [a]}]\n"),
		Entry("address count", "nodes: [a, b]\nlinks: [{nodes: [a, b], addresses: [10.0.0.1/24]}]\n"),
		Entry("bad address", "nodes: [a, b]\nlinks: [{nodes: [a, b], addresses: [x, y]}]\n"),
		Entry("bad delay", "nodes: [a, b]\nlinks: [{nodes: [a, b], delay: soon}]\n"),
		Entry("unknown bridge link", "nodes: [a, b]\nlinks: [{nodes: [a, b]}]\nbridges: [{node: a, links: [nope]}]\n"),
	)
})
