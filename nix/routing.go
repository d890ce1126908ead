package nix

import (
	"fmt"
	"io"
	"net/netip"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nssim/netmodel"
)

// Stats counts cache activity.
type Stats struct {
	NixHits     uint64
	NixMisses   uint64
	RouteHits   uint64
	RouteMisses uint64
	Flushes     uint64
	NoRoute     uint64
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		NixHits:     s.NixHits + o.NixHits,
		NixMisses:   s.NixMisses + o.NixMisses,
		RouteHits:   s.RouteHits + o.RouteHits,
		RouteMisses: s.RouteMisses + o.RouteMisses,
		Flushes:     s.Flushes + o.Flushes,
		NoRoute:     s.NoRoute + o.NoRoute,
	}
}

type routeEntry struct {
	route *netmodel.Route
	index uint32
}

// Routing is the Nix-vector routing of one node. It is only used from the
// simulation goroutine and does no locking.
type Routing struct {
	domain *Domain
	node   *netmodel.Node

	epoch          uint64
	nixCache       map[netip.Addr]*NixVector
	routeCache     map[netip.Addr]routeEntry
	totalNeighbors int

	nixHits, nixMisses     atomic.Uint64
	routeHits, routeMisses atomic.Uint64
	flushes, noRoute       atomic.Uint64
}

func newRouting(d *Domain, node *netmodel.Node) *Routing {
	return &Routing{
		domain:         d,
		node:           node,
		epoch:          d.Epoch(),
		nixCache:       make(map[netip.Addr]*NixVector),
		routeCache:     make(map[netip.Addr]routeEntry),
		totalNeighbors: -1,
	}
}

// Node returns the node this routing serves.
func (r *Routing) Node() *netmodel.Node {
	return r.node
}

// Stats returns the cache statistics.
func (r *Routing) Stats() Stats {
	return Stats{
		NixHits:     r.nixHits.Load(),
		NixMisses:   r.nixMisses.Load(),
		RouteHits:   r.routeHits.Load(),
		RouteMisses: r.routeMisses.Load(),
		Flushes:     r.flushes.Load(),
		NoRoute:     r.noRoute.Load(),
	}
}

// NumCachedVectors returns the size of the Nix cache.
func (r *Routing) NumCachedVectors() int {
	return len(r.nixCache)
}

// NumCachedRoutes returns the size of the route cache.
func (r *Routing) NumCachedRoutes() int {
	return len(r.routeCache)
}

// FlushCaches drops every cached vector and route.
func (r *Routing) FlushCaches() {
	clear(r.nixCache)
	clear(r.routeCache)
	r.totalNeighbors = -1

	r.flushes.Add(1)

	logrus.WithField("node", r.node.Name()).Debug("nix: caches flushed")
}

func (r *Routing) checkCacheState() {
	epoch := r.domain.sync()
	if epoch != r.epoch {
		r.FlushCaches()
		r.epoch = epoch
	}
}

func (r *Routing) numNeighbors() uint32 {
	if r.totalNeighbors < 0 {
		r.totalNeighbors = len(neighbors(r.node))
	}
	return uint32(r.totalNeighbors)
}

// Resolve returns a copy of the vector from this node to dest, computing and
// caching it on a miss.
func (r *Routing) Resolve(dest netip.Addr) (*NixVector, error) {
	r.checkCacheState()

	v, err := r.cachedNixVector(dest, nil)
	if err != nil {
		return nil, err
	}

	return v.Copy(), nil
}

// ResolveRoute returns the next-hop route to dest. When oif is not nil the
// route leaves through oif.
func (r *Routing) ResolveRoute(dest netip.Addr, oif *netmodel.Device) (*netmodel.Route, error) {
	route, _, err := r.resolve(dest, oif)
	return route, err
}

// RouteOutput routes a packet originated by the node. The rest of the
// vector, past the first hop, is attached to the packet.
func (r *Routing) RouteOutput(
	p *netmodel.Packet,
	dst netip.Addr,
	oif *netmodel.Device,
) (*netmodel.Route, error) {
	route, v, err := r.resolve(dst, oif)
	if err != nil {
		r.noRoute.Add(1)

		logrus.WithFields(logrus.Fields{
			"node": r.node.Name(),
			"dst":  dst,
		}).WithError(err).Warn("nix: no route to destination")

		return nil, fmt.Errorf("%w %s: %w", ErrNoRoute, dst, err)
	}

	if p != nil && v != nil {
		p.SetNixVector(v)
	}

	return route, nil
}

// RouteInput delivers packets for this node locally and forwards the others
// along the vector they carry. A packet whose vector was computed before
// the last topology change gets a fresh vector from here.
func (r *Routing) RouteInput(p *netmodel.Packet, in *netmodel.Device, cb netmodel.InputCallbacks) bool {
	r.checkCacheState()

	if r.node.IsLocalAddress(p.Dst) {
		if cb.Local == nil {
			return false
		}

		cb.Local(p, in)

		return true
	}

	v := p.NixVector()
	if nv, ok := v.(*NixVector); v == nil || ok && nv.Epoch() != r.epoch {
		logrus.WithFields(logrus.Fields{
			"node":   r.node.Name(),
			"packet": p.UID,
		}).Warn("nix: stale nix vector, recomputing")

		fresh, err := r.cachedNixVector(p.Dst, nil)
		if err != nil {
			r.noRoute.Add(1)
			r.fail(cb, p, fmt.Errorf("%w %s: %w", ErrNoRoute, p.Dst, err))
			return true
		}

		v = fresh.Copy()
		p.SetNixVector(v)
	}

	index, err := v.ExtractNeighborIndex(BitCount(r.numNeighbors()))
	if err != nil {
		r.fail(cb, p, err)
		return true
	}

	route, err := r.cachedRoute(p.Dst, index, nil)
	if err != nil {
		r.fail(cb, p, err)
		return true
	}

	cb.Forward(route, p)

	return true
}

// PrintRoutingPath writes the hops of the path from this node to dest.
func (r *Routing) PrintRoutingPath(dest netip.Addr, w io.Writer) error {
	return r.domain.PrintRoutingPath(r.node, dest, w)
}

// GetNixVector computes the vector from this node to dest without using the
// cache. When oif is not nil the path leaves through oif. A destination on
// this node gives an empty vector.
func (r *Routing) GetNixVector(dest netip.Addr, oif *netmodel.Device) (*NixVector, error) {
	epoch := r.domain.sync()

	destNode := r.domain.network.NodeByAddress(dest)
	if destNode == nil {
		return nil, fmt.Errorf("%w: no node owns %s", ErrNoPath, dest)
	}

	v := NewNixVector()
	v.SetEpoch(epoch)

	if destNode == r.node {
		return v, nil
	}

	parents, ok := r.bfs(destNode, oif)
	if !ok {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoPath, r.node, dest)
	}

	for cur := destNode; cur != r.node; cur = parents[cur.ID()] {
		parent := parents[cur.ID()]
		nbs := neighbors(parent)

		index := -1
		for i, nb := range nbs {
			if parent == r.node && oif != nil && nb.local != oif {
				continue
			}

			if nb.remote.Node() == cur && nb.usable() {
				index = i
				break
			}
		}

		if index < 0 {
			return nil, fmt.Errorf("%w: %s to %s", ErrNoPath, r.node, dest)
		}

		v.AddNeighborIndex(uint32(index), BitCount(uint32(len(nbs))))
	}

	return v, nil
}

// bfs returns the parent of every node reached from this node, stopping at
// dest. The parent of the source is itself.
func (r *Routing) bfs(dest *netmodel.Node, oif *netmodel.Device) ([]*netmodel.Node, bool) {
	parents := make([]*netmodel.Node, r.domain.network.NumNodes())
	parents[r.node.ID()] = r.node

	queue := []*netmodel.Node{r.node}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur == dest {
			return parents, true
		}

		for _, nb := range neighbors(cur) {
			if cur == r.node && oif != nil && nb.local != oif {
				continue
			}

			if !nb.usable() {
				continue
			}

			next := nb.remote.Node()
			if parents[next.ID()] == nil {
				parents[next.ID()] = cur
				queue = append(queue, next)
			}
		}
	}

	return nil, false
}

func (r *Routing) resolve(
	dst netip.Addr,
	oif *netmodel.Device,
) (*netmodel.Route, *NixVector, error) {
	r.checkCacheState()

	if r.node.IsLocalAddress(dst) {
		return r.localRoute(dst), nil, nil
	}

	master, err := r.cachedNixVector(dst, oif)
	if err != nil {
		return nil, nil, err
	}

	v := master.Copy()

	index, err := v.ExtractNeighborIndex(BitCount(r.numNeighbors()))
	if err != nil {
		return nil, nil, err
	}

	route, err := r.cachedRoute(dst, index, oif)
	if err != nil {
		return nil, nil, err
	}

	return route, v, nil
}

// cachedNixVector returns the cached vector to dest, computing it on a
// miss. Vectors for a forced output device are not cached.
func (r *Routing) cachedNixVector(dst netip.Addr, oif *netmodel.Device) (*NixVector, error) {
	if oif == nil {
		if v, ok := r.nixCache[dst]; ok {
			r.nixHits.Add(1)
			r.trace("nix: vector cache hit", dst)
			return v, nil
		}
	}

	r.nixMisses.Add(1)
	r.trace("nix: vector cache miss", dst)

	v, err := r.GetNixVector(dst, oif)
	if err != nil {
		return nil, err
	}

	if oif == nil {
		r.nixCache[dst] = v
	}

	return v, nil
}

// cachedRoute returns the route for the first hop index of a vector to dst.
// A cached route is reused only for the same hop and output device.
func (r *Routing) cachedRoute(dst netip.Addr, index uint32, oif *netmodel.Device) (*netmodel.Route, error) {
	entry, ok := r.routeCache[dst]
	if ok && entry.index == index && (oif == nil || entry.route.OutputDevice == oif) {
		r.routeHits.Add(1)
		r.trace("nix: route cache hit", dst)
		return entry.route, nil
	}

	r.routeMisses.Add(1)
	r.trace("nix: route cache miss", dst)
	delete(r.routeCache, dst)

	nbs := neighbors(r.node)
	if int(index) >= len(nbs) {
		return nil, fmt.Errorf("%w: selector %d with %d neighbors",
			ErrNoRoute, index, len(nbs))
	}

	hop := nbs[index]
	if oif != nil && hop.local != oif {
		return nil, fmt.Errorf("%w: selector %d does not leave through %s",
			ErrNoRoute, index, oif)
	}

	out := hop.local

	gateway := hop.remote.Address()
	if !gateway.IsValid() {
		return nil, fmt.Errorf("%w: next hop %s has no address", ErrNoRoute, hop.remote)
	}

	route := &netmodel.Route{
		Destination:  dst,
		Source:       sourceAddress(out),
		Gateway:      gateway,
		OutputDevice: out,
	}

	r.routeCache[dst] = routeEntry{route: route, index: index}

	return route, nil
}

func (r *Routing) localRoute(dst netip.Addr) *netmodel.Route {
	src := netip.AddrFrom4([4]byte{127, 0, 0, 1})
	if !dst.IsLoopback() {
		src = dst
	}

	return &netmodel.Route{
		Destination:  dst,
		Source:       src,
		Gateway:      dst,
		OutputDevice: r.node.Loopback(),
	}
}

func (r *Routing) fail(cb netmodel.InputCallbacks, p *netmodel.Packet, err error) {
	if cb.Error != nil {
		cb.Error(p, err)
	}
}

func (r *Routing) trace(msg string, dst netip.Addr) {
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	logrus.WithFields(logrus.Fields{
		"node": r.node.Name(),
		"dst":  dst,
	}).Debug(msg)
}

// sourceAddress is the address packets leaving through d carry.
func sourceAddress(d *netmodel.Device) netip.Addr {
	if addr := d.Address(); addr.IsValid() {
		return addr
	}
	return d.Node().PrimaryAddress()
}
