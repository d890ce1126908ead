package nix

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nssim/netmodel"
)

// Errors returned by route computations.
var (
	ErrNoPath       = errors.New("nix: no path to destination")
	ErrNoRoute      = errors.New("nix: no route to host")
	ErrNotInstalled = errors.New("nix: routing is not installed on node")
)

// Domain is the Nix-vector routing of one network. It owns the dirty flag
// every node consults before using its caches.
type Domain struct {
	network *netmodel.Network

	dirty atomic.Bool
	epoch atomic.Uint64

	routers map[netmodel.NodeID]*Routing
	order   []*Routing
}

// NewDomain creates the routing domain of a network. Every topology change
// of the network marks the caches dirty.
func NewDomain(n *netmodel.Network) *Domain {
	d := &Domain{
		network: n,
		routers: make(map[netmodel.NodeID]*Routing),
	}

	n.OnChange(func(netmodel.Change) {
		d.Invalidate()
	})

	return d
}

// Network returns the routed network.
func (d *Domain) Network() *netmodel.Network {
	return d.network
}

// Install creates the routing of a node and makes it the node's router.
// Installing twice returns the existing routing.
func (d *Domain) Install(node *netmodel.Node) *Routing {
	if r, ok := d.routers[node.ID()]; ok {
		return r
	}

	r := newRouting(d, node)
	node.SetRouter(r)

	d.routers[node.ID()] = r
	d.order = append(d.order, r)

	return r
}

// InstallAll installs routing on every node of the network.
func (d *Domain) InstallAll() []*Routing {
	for _, node := range d.network.Nodes() {
		d.Install(node)
	}
	return d.order
}

// Routing returns the routing installed on node, or nil.
func (d *Domain) Routing(node *netmodel.Node) *Routing {
	return d.routers[node.ID()]
}

// Routers returns the installed routings in install order.
func (d *Domain) Routers() []*Routing {
	return d.order
}

// Invalidate marks every cache of the domain stale. Caches are flushed
// lazily, by each node on its next routing decision.
func (d *Domain) Invalidate() {
	d.dirty.Store(true)
}

// IsDirty tells if a topology change has not been taken into account yet.
func (d *Domain) IsDirty() bool {
	return d.dirty.Load()
}

// Epoch returns the number of topology changes taken into account so far.
// Vectors computed in an older epoch are stale.
func (d *Domain) Epoch() uint64 {
	return d.epoch.Load()
}

// sync turns a pending invalidation into a new epoch and returns the
// current epoch.
func (d *Domain) sync() uint64 {
	if d.dirty.CompareAndSwap(true, false) {
		epoch := d.epoch.Add(1)

		logrus.WithField("epoch", epoch).Debug("nix: topology changed, caches are stale")

		return epoch
	}

	return d.epoch.Load()
}

// Stats sums the cache statistics of all installed routings.
func (d *Domain) Stats() Stats {
	var total Stats
	for _, r := range d.order {
		total = total.add(r.Stats())
	}
	return total
}

// neighbor is one entry of the neighbor enumeration of a node.
type neighbor struct {
	local  *netmodel.Device
	remote *netmodel.Device

	// pathUp is false when the channel or a bridge between the two is down.
	pathUp bool
}

// usable tells if packets can travel from local to remote now.
func (n neighbor) usable() bool {
	return n.pathUp &&
		n.local.IsUp() && n.local.IsLinkUp() &&
		n.remote.IsUp() && n.remote.IsLinkUp()
}

// neighbors enumerates the neighbors of a node: devices in index order, and
// for each device the devices adjacent over its channel. The enumeration
// does not depend on interface or link state, so selector numbering stays
// stable while links flap.
func neighbors(node *netmodel.Node) []neighbor {
	var out []neighbor

	for _, local := range node.Devices() {
		if local.Kind() != netmodel.KindNetDevice || local.Channel() == nil {
			continue
		}

		for _, a := range local.Channel().Adjacencies(local) {
			out = append(out, neighbor{local: local, remote: a.Device, pathUp: a.Up})
		}
	}

	return out
}

// Path decodes the vector from source to dest into the node sequence it
// encodes, both ends included.
func (d *Domain) Path(source *netmodel.Node, dest netip.Addr) ([]*netmodel.Node, error) {
	path := []*netmodel.Node{source}

	err := d.walk(source, dest, func(hop neighbor) {
		path = append(path, hop.remote.Node())
	})
	if err != nil {
		return nil, err
	}

	return path, nil
}

// PrintRoutingPath writes the hops of the path from source to dest.
func (d *Domain) PrintRoutingPath(source *netmodel.Node, dest netip.Addr, w io.Writer) error {
	r := d.Routing(source)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrNotInstalled, source)
	}

	v, err := r.Resolve(dest)
	if err != nil {
		fmt.Fprintf(w, "No route from %s to %s\n", source, dest)
		return err
	}

	fmt.Fprintf(w, "Time: %s, Nix Routing\n", d.network.Simulator().Now())
	fmt.Fprintf(w, "Route path from %s to %s, Nix Vector: %s (%d bits)\n",
		source, dest, v, v.TotalBits())

	return d.walk(source, dest, func(hop neighbor) {
		fmt.Fprintf(w, "%s (%s) ---> %s (%s)\n",
			hop.local.Node(), sourceAddress(hop.local),
			hop.remote.Node(), hop.remote.Address())
	})
}

// walk follows the vector from source to dest and reports every hop.
func (d *Domain) walk(source *netmodel.Node, dest netip.Addr, visit func(hop neighbor)) error {
	r := d.Routing(source)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrNotInstalled, source)
	}

	v, err := r.Resolve(dest)
	if err != nil {
		return err
	}

	cur := source

	for !cur.IsLocalAddress(dest) {
		nbs := neighbors(cur)

		index, err := v.ExtractNeighborIndex(BitCount(uint32(len(nbs))))
		if err != nil {
			return err
		}

		if int(index) >= len(nbs) {
			return fmt.Errorf("%w: selector %d at %s with %d neighbors",
				ErrNoRoute, index, cur, len(nbs))
		}

		hop := nbs[index]
		visit(hop)

		cur = hop.remote.Node()
	}

	if v.RemainingBits() != 0 {
		return fmt.Errorf("nix: %d bits left at %s", v.RemainingBits(), cur)
	}

	return nil
}
