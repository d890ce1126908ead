package nix_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/nssim/nix"
)

var _ = Describe("NixVector", func() {
	DescribeTable("should size selectors to the fan-out",
		func(neighbors, bits uint32) {
			Expect(nix.BitCount(neighbors)).To(Equal(bits))
		},
		Entry("no neighbor", uint32(0), uint32(1)),
		Entry("one neighbor", uint32(1), uint32(1)),
		Entry("two neighbors", uint32(2), uint32(1)),
		Entry("three neighbors", uint32(3), uint32(2)),
		Entry("four neighbors", uint32(4), uint32(2)),
		Entry("five neighbors", uint32(5), uint32(3)),
		Entry("256 neighbors", uint32(256), uint32(8)),
		Entry("257 neighbors", uint32(257), uint32(9)),
	)

	It("should extract selectors last in first out across words", func() {
		type selector struct{ index, width uint32 }
		selectors := []selector{
			{1, 1}, {5, 3}, {0, 7}, {1000, 10}, {3, 2}, {77, 9}, {1, 1}, {65535, 16},
			{0xFFFFFFFF, 32}, {6, 3},
		}

		v := nix.NewNixVector()
		total := uint32(0)
		for _, s := range selectors {
			v.AddNeighborIndex(s.index, s.width)
			total += s.width
		}

		Expect(v.TotalBits()).To(Equal(total))

		for i := len(selectors) - 1; i >= 0; i-- {
			got, err := v.ExtractNeighborIndex(selectors[i].width)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(selectors[i].index))
		}

		Expect(v.RemainingBits()).To(BeZero())
	})

	It("should refuse to extract more bits than are left", func() {
		v := nix.NewNixVector()
		v.AddNeighborIndex(2, 2)

		_, err := v.ExtractNeighborIndex(3)
		Expect(errors.Is(err, nix.ErrInsufficientBits)).To(BeTrue())
		Expect(v.RemainingBits()).To(Equal(uint32(2)))
	})

	It("should panic on selectors that do not fit", func() {
		v := nix.NewNixVector()

		Expect(func() { v.AddNeighborIndex(4, 2) }).To(Panic())
		Expect(func() { v.AddNeighborIndex(0, 0) }).To(Panic())
		Expect(func() { v.AddNeighborIndex(0, 33) }).To(Panic())
	})

	It("should copy independently", func() {
		v := nix.NewNixVector()
		v.AddNeighborIndex(1, 1)
		v.AddNeighborIndex(2, 2)
		v.SetEpoch(7)

		c := v.Copy()
		_, err := c.ExtractNeighborIndex(2)
		Expect(err).NotTo(HaveOccurred())
		c.AddNeighborIndex(1, 1)

		Expect(v.RemainingBits()).To(Equal(uint32(3)))
		Expect(v.String()).To(Equal("101"))
		Expect(c.Epoch()).To(Equal(uint64(7)))
	})

	It("should serialize the bits left", func() {
		v := nix.NewNixVector()
		for i := uint32(0); i < 20; i++ {
			v.AddNeighborIndex(i%4, 2)
		}

		_, err := v.ExtractNeighborIndex(2)
		Expect(err).NotTo(HaveOccurred())

		data := v.Serialize()
		Expect(data[0]).To(Equal(uint32(38)))
		Expect(data).To(HaveLen(3))

		back, err := nix.Deserialize(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(back.String()).To(Equal(v.String()))

		for i := 18; i >= 0; i-- {
			got, err := back.ExtractNeighborIndex(2)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(uint32(i % 4)))
		}
	})

	It("should reject malformed encodings", func() {
		for _, data := range [][]uint32{
			nil,
			{33, 1},
			{2, 1, 1},
			{2, 0xF},
		} {
			_, err := nix.Deserialize(data)
			Expect(errors.Is(err, nix.ErrBadEncoding)).To(BeTrue(), "%v", data)
		}

		v, err := nix.Deserialize([]uint32{0})
		Expect(err).NotTo(HaveOccurred())
		Expect(v.TotalBits()).To(BeZero())
	})
})
