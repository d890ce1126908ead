package netmodel

import (
	"errors"
	"fmt"
	"net/netip"
)

// DefaultTTL is the hop limit given to new packets.
const DefaultTTL = 64

// Errors reported when a packet cannot make progress.
var (
	ErrNoRouter           = errors.New("netmodel: node has no router")
	ErrLinkDown           = errors.New("netmodel: link is down")
	ErrInterfaceDown      = errors.New("netmodel: interface is down")
	ErrUnreachableGateway = errors.New("netmodel: gateway is not on the link")
	ErrTTLExpired         = errors.New("netmodel: ttl expired")
)

// NixVector is a source route carried by a packet. Forwarding nodes consume
// it one hop at a time.
type NixVector interface {
	ExtractNeighborIndex(bits uint32) (uint32, error)
	RemainingBits() uint32
}

// Packet is a unit of data sent between nodes.
type Packet struct {
	UID     uint64
	Src     netip.Addr
	Dst     netip.Addr
	Size    int
	TTL     int
	Payload []byte

	// Hops lists the nodes the packet went through, the sender first.
	Hops []NodeID

	nix NixVector
}

// NewPacket creates a packet of size bytes addressed to dst.
func (n *Network) NewPacket(dst netip.Addr, size int) *Packet {
	return &Packet{
		UID:  n.newPacketID(),
		Dst:  dst,
		Size: size,
		TTL:  DefaultTTL,
	}
}

// SetNixVector attaches a source route. The packet consumes the vector, so
// callers hand over a copy of anything they keep.
func (p *Packet) SetNixVector(v NixVector) {
	p.nix = v
}

// NixVector returns the attached source route, or nil.
func (p *Packet) NixVector() NixVector {
	return p.nix
}

func (p *Packet) String() string {
	return fmt.Sprintf("packet %d %s -> %s (%d bytes)", p.UID, p.Src, p.Dst, p.Size)
}

func (p *Packet) recordHop(id NodeID) {
	if len(p.Hops) > 0 && p.Hops[len(p.Hops)-1] == id {
		return
	}
	p.Hops = append(p.Hops, id)
}

// Route is the next-hop decision for a destination.
type Route struct {
	Destination  netip.Addr
	Source       netip.Addr
	Gateway      netip.Addr
	OutputDevice *Device
}

func (r *Route) String() string {
	return fmt.Sprintf("%s via %s dev %s src %s",
		r.Destination, r.Gateway, r.OutputDevice, r.Source)
}

// InputCallbacks are what a router calls when it decides about an incoming
// packet.
type InputCallbacks struct {
	Forward func(r *Route, p *Packet)
	Local   func(p *Packet, in *Device)
	Error   func(p *Packet, err error)
}

// Router chooses routes for the packets of one node.
type Router interface {
	// RouteOutput routes a packet originated by the node. oif, if not nil,
	// is the device the caller wants to send through.
	RouteOutput(p *Packet, dst netip.Addr, oif *Device) (*Route, error)

	// RouteInput decides about a packet received on in. It returns false if
	// the packet was not handled.
	RouteInput(p *Packet, in *Device, cb InputCallbacks) bool
}
