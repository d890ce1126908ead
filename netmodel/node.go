package netmodel

import (
	"fmt"
	"net/netip"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/nssim/simtime"
)

// Node is a host or router in the network.
type Node struct {
	id      NodeID
	name    string
	network *Network

	devices []*Device
	router  Router

	receivers []func(p *Packet)
	droppers  []func(p *Packet, err error)

	received, dropped uint64
}

// ID returns the node ID.
func (n *Node) ID() NodeID {
	return n.id
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.name
}

// Network returns the network the node belongs to.
func (n *Node) Network() *Network {
	return n.network
}

func (n *Node) String() string {
	return n.name
}

// NumDevices returns the number of devices, the loopback included.
func (n *Node) NumDevices() int {
	return len(n.devices)
}

// Device returns the device at index i.
func (n *Node) Device(i int) *Device {
	return n.devices[i]
}

// Devices returns the devices in index order.
func (n *Node) Devices() []*Device {
	return n.devices
}

// Loopback returns the loopback device.
func (n *Node) Loopback() *Device {
	return n.devices[0]
}

// AddDevice adds a network device that can attach to a channel.
func (n *Node) AddDevice(name string) *Device {
	d := n.addDevice(name, KindNetDevice)
	n.network.notify(Change{Kind: ChangeDeviceAdded, Device: d})
	return d
}

// AddBridge adds a bridge joining the given devices of this node. Packets
// reaching a port are relayed to the channels of the other ports.
func (n *Node) AddBridge(name string, ports ...*Device) *Device {
	for _, p := range ports {
		switch {
		case p.node != n:
			panic(fmt.Sprintf("netmodel: port %s is not on node %s", p, n))
		case p.kind != KindNetDevice:
			panic(fmt.Sprintf("netmodel: %s cannot be a bridge port", p))
		case p.bridge != nil:
			panic(fmt.Sprintf("netmodel: %s is already bridged", p))
		}
	}

	b := n.addDevice(name, KindBridge)
	b.ports = append(b.ports, ports...)

	for _, p := range ports {
		p.bridge = b
	}

	n.network.notify(Change{Kind: ChangeBridgeAdded, Device: b})

	return b
}

func (n *Node) addDevice(name string, kind Kind) *Device {
	d := &Device{
		node:  n,
		index: len(n.devices),
		name:  name,
		kind:  kind,
		up:    true,
	}

	if d.name == "" {
		d.name = fmt.Sprintf("dev%d", d.index)
	}

	n.devices = append(n.devices, d)

	return d
}

// DeviceByAddress returns the device owning addr, or nil.
func (n *Node) DeviceByAddress(addr netip.Addr) *Device {
	for _, d := range n.devices {
		if d.HasAddress(addr) {
			return d
		}
	}
	return nil
}

// Addresses returns the node's addresses, the loopback one excluded.
func (n *Node) Addresses() []netip.Addr {
	var addrs []netip.Addr

	for _, d := range n.devices[1:] {
		for _, p := range d.addrs {
			addrs = append(addrs, p.Addr())
		}
	}

	return addrs
}

// PrimaryAddress returns the first non-loopback address, or the zero Addr.
func (n *Node) PrimaryAddress() netip.Addr {
	addrs := n.Addresses()
	if len(addrs) == 0 {
		return netip.Addr{}
	}
	return addrs[0]
}

// IsLocalAddress tells if packets to addr are delivered on this node.
func (n *Node) IsLocalAddress(addr netip.Addr) bool {
	if addr.IsLoopback() {
		return true
	}

	d := n.DeviceByAddress(addr)
	return d != nil && d.up
}

// SetRouter installs the routing logic.
func (n *Node) SetRouter(r Router) {
	n.router = r
}

// Router returns the installed routing logic.
func (n *Node) Router() Router {
	return n.router
}

// OnReceive registers a handler for packets delivered to this node.
func (n *Node) OnReceive(h func(p *Packet)) {
	n.receivers = append(n.receivers, h)
}

// OnDrop registers a handler for packets dropped at this node.
func (n *Node) OnDrop(h func(p *Packet, err error)) {
	n.droppers = append(n.droppers, h)
}

// Received returns the number of packets delivered to this node.
func (n *Node) Received() uint64 {
	return n.received
}

// Dropped returns the number of packets dropped at this node.
func (n *Node) Dropped() uint64 {
	return n.dropped
}

// Send routes and sends a packet originated by this node. A routing failure
// is returned and the packet is dropped.
func (n *Node) Send(p *Packet) error {
	return n.SendVia(p, nil)
}

// SendVia is Send with a preferred output device.
func (n *Node) SendVia(p *Packet, oif *Device) error {
	if n.router == nil {
		n.drop(p, ErrNoRouter)
		return ErrNoRouter
	}

	route, err := n.router.RouteOutput(p, p.Dst, oif)
	if err != nil {
		n.drop(p, err)
		return err
	}

	if !p.Src.IsValid() {
		p.Src = route.Source
	}

	p.recordHop(n.id)

	return n.transmit(route, p)
}

func (n *Node) transmit(route *Route, p *Packet) error {
	if route.OutputDevice.kind == KindLoopback {
		lo := route.OutputDevice
		n.network.sim.ScheduleWithContext(uint32(n.id), simtime.Zero(), func() {
			n.deliver(p, lo)
		})
		return nil
	}

	err := route.OutputDevice.send(p, route.Gateway)
	if err != nil {
		n.drop(p, err)
	}

	return err
}

func (n *Node) receive(p *Packet, in *Device) {
	p.recordHop(n.id)

	if n.router == nil {
		n.drop(p, ErrNoRouter)
		return
	}

	handled := n.router.RouteInput(p, in, InputCallbacks{
		Forward: n.forward,
		Local:   n.deliver,
		Error:   n.drop,
	})

	if !handled {
		logrus.WithFields(logrus.Fields{
			"node":   n.name,
			"packet": p.UID,
		}).Debug("netmodel: packet not handled by router")
	}
}

func (n *Node) forward(route *Route, p *Packet) {
	p.TTL--
	if p.TTL <= 0 {
		n.drop(p, ErrTTLExpired)
		return
	}

	_ = n.transmit(route, p)
}

func (n *Node) deliver(p *Packet, _ *Device) {
	n.received++

	for _, h := range n.receivers {
		h(p)
	}
}

func (n *Node) drop(p *Packet, err error) {
	n.dropped++

	logrus.WithFields(logrus.Fields{
		"node":   n.name,
		"packet": p.UID,
		"dst":    p.Dst,
	}).WithError(err).Warn("netmodel: packet dropped")

	for _, h := range n.droppers {
		h(p, err)
	}
}
