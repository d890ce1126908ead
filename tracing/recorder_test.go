package tracing_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nssim/netmodel"
	"github.com/sarchlab/nssim/nix"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
	"github.com/sarchlab/nssim/tracing"
)

const lineTopology = `
nodes: [n0, n1, n2]
links:
  - {nodes: [n0, n1], delay: 1ms}
  - {nodes: [n1, n2], delay: 1ms}
`

var _ = Describe("Recorder", func() {
	var (
		s    sim.Simulator
		r    *tracing.Recorder
		path string
	)

	BeforeEach(func() {
		var err error

		path = filepath.Join(GinkgoT().TempDir(), "trace")
		r, err = tracing.NewRecorder(path)
		Expect(err).NotTo(HaveOccurred())

		s = sim.MakeBuilder().Build()
	})

	AfterEach(func() {
		s.Destroy()
		Expect(r.Close()).To(Succeed())
	})

	count := func(query string, args ...any) int {
		var n int
		Expect(r.QueryRow(query, args...).Scan(&n)).To(Succeed())
		return n
	}

	It("should refuse an existing file", func() {
		_, err := os.Stat(path + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())

		_, err = tracing.NewRecorder(path)
		Expect(err).To(MatchError(ContainSubstring("already exists")))
	})

	It("should record every invoked event", func() {
		tracing.CollectTrace(s, r)

		s.Schedule(simtime.MilliSeconds(1), func() {})
		s.ScheduleWithContext(3, simtime.MilliSeconds(2), func() {})
		s.Run()
		r.Flush()

		Expect(count("SELECT COUNT(*) FROM events")).To(Equal(2))
		Expect(count("SELECT context FROM events WHERE seq = 2")).To(Equal(3))

		var steps int64
		Expect(r.QueryRow("SELECT steps FROM events WHERE seq = 1").Scan(&steps)).
			To(Succeed())
		Expect(steps).To(Equal(simtime.MilliSeconds(1).GetTimeStep()))
	})

	It("should panic when tracing twice", func() {
		tracing.CollectTrace(s, r)

		Expect(func() { tracing.CollectTrace(s, r) }).To(Panic())
	})

	It("should flush when the simulator is destroyed", func() {
		tracing.CollectTrace(s, r)

		s.Schedule(simtime.MilliSeconds(1), func() {})
		s.Run()
		s.Destroy()

		Expect(count("SELECT COUNT(*) FROM events")).To(Equal(1))
	})

	It("should flush full batches", func() {
		r.WithBatchSize(2)
		tracing.CollectTrace(s, r)

		for i := int64(1); i <= 3; i++ {
			s.Schedule(simtime.MilliSeconds(i), func() {})
		}
		s.Run()

		Expect(count("SELECT COUNT(*) FROM events")).To(Equal(2))
	})

	It("should record delivered and dropped packets", func() {
		network := netmodel.NewNetwork(s)
		t, err := netmodel.DecodeTopology(strings.NewReader(lineTopology), netmodel.FormatYAML)
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Build(network)).To(Succeed())
		nix.NewDomain(network).InstallAll()

		tracing.WatchNetwork(network, r)

		n0 := network.NodeByName("n0")
		delivered := network.NewPacket(netip.MustParseAddr("10.1.2.2"), 100)
		Expect(n0.Send(delivered)).To(Succeed())
		Expect(n0.Send(network.NewPacket(netip.MustParseAddr("10.9.9.9"), 100))).
			NotTo(Succeed())
		s.Run()
		r.Flush()

		Expect(count("SELECT COUNT(*) FROM packets WHERE kind = 'delivered' AND node = 'n2'")).
			To(Equal(1))
		Expect(count("SELECT hops FROM packets WHERE uid = ?", delivered.UID)).To(Equal(3))
		Expect(count("SELECT COUNT(*) FROM packets WHERE kind = 'dropped' AND reason != ''")).
			To(Equal(1))
	})

	It("should close only once", func() {
		Expect(r.Close()).To(Succeed())
		Expect(r.Close()).To(Succeed())
		Expect(r.Flush).NotTo(Panic())
	})
})
