package netmodel

import (
	"fmt"
	"net/netip"

	"golang.org/x/exp/slices"
)

// Kind tells what a device is.
type Kind int

// Device kinds.
const (
	KindLoopback Kind = iota
	KindNetDevice
	KindBridge
)

func (k Kind) String() string {
	switch k {
	case KindLoopback:
		return "loopback"
	case KindNetDevice:
		return "netdevice"
	case KindBridge:
		return "bridge"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Device is a network interface of a node. It carries the IP interface
// state too: its addresses and whether it is up.
type Device struct {
	node  *Node
	index int
	name  string
	kind  Kind

	channel *Channel
	bridge  *Device
	ports   []*Device

	addrs []netip.Prefix
	up    bool
}

// Node returns the node owning the device.
func (d *Device) Node() *Node {
	return d.node
}

// Index returns the position of the device on its node.
func (d *Device) Index() int {
	return d.index
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Kind returns the device kind.
func (d *Device) Kind() Kind {
	return d.kind
}

// IsBridge tells if the device is a bridge.
func (d *Device) IsBridge() bool {
	return d.kind == KindBridge
}

// Channel returns the attached channel, or nil.
func (d *Device) Channel() *Channel {
	return d.channel
}

// Bridge returns the bridge this device is a port of, or nil.
func (d *Device) Bridge() *Device {
	return d.bridge
}

// Ports returns the ports of a bridge.
func (d *Device) Ports() []*Device {
	return d.ports
}

func (d *Device) String() string {
	return fmt.Sprintf("%s/%s", d.node.name, d.name)
}

// Addresses returns the assigned addresses.
func (d *Device) Addresses() []netip.Prefix {
	return d.addrs
}

// Address returns the first assigned address, or the zero Addr.
func (d *Device) Address() netip.Addr {
	if len(d.addrs) == 0 {
		return netip.Addr{}
	}
	return d.addrs[0].Addr()
}

// HasAddress tells if addr is assigned to the device.
func (d *Device) HasAddress(addr netip.Addr) bool {
	return slices.ContainsFunc(d.addrs, func(p netip.Prefix) bool {
		return p.Addr() == addr
	})
}

// AddAddress assigns an address.
func (d *Device) AddAddress(p netip.Prefix) {
	if d.HasAddress(p.Addr()) {
		return
	}

	d.addrs = append(d.addrs, p)
	d.node.network.notify(Change{Kind: ChangeAddressAdded, Device: d})
}

// RemoveAddress removes an address. It returns false if the address was not
// assigned.
func (d *Device) RemoveAddress(addr netip.Addr) bool {
	i := slices.IndexFunc(d.addrs, func(p netip.Prefix) bool {
		return p.Addr() == addr
	})
	if i < 0 {
		return false
	}

	d.addrs = slices.Delete(d.addrs, i, i+1)
	d.node.network.notify(Change{Kind: ChangeAddressRemoved, Device: d})

	return true
}

// IsUp tells if the IP interface is up.
func (d *Device) IsUp() bool {
	return d.up
}

// SetUp brings the IP interface up.
func (d *Device) SetUp() {
	if d.up {
		return
	}

	d.up = true
	d.node.network.notify(Change{Kind: ChangeInterfaceUp, Device: d})
}

// SetDown brings the IP interface down.
func (d *Device) SetDown() {
	if !d.up {
		return
	}

	d.up = false
	d.node.network.notify(Change{Kind: ChangeInterfaceDown, Device: d})
}

// IsLinkUp tells if the device can reach its channel.
func (d *Device) IsLinkUp() bool {
	if d.kind != KindNetDevice {
		return true
	}
	return d.channel != nil && d.channel.up
}

func (d *Device) send(p *Packet, gateway netip.Addr) error {
	switch {
	case !d.up:
		return ErrInterfaceDown
	case !d.IsLinkUp():
		return ErrLinkDown
	}

	return d.channel.transmit(d, p, gateway)
}

func (d *Device) receive(p *Packet) {
	if !d.up {
		d.node.drop(p, ErrInterfaceDown)
		return
	}

	d.node.receive(p, d)
}
