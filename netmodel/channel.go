package netmodel

import (
	"fmt"
	"net/netip"

	"github.com/sarchlab/nssim/simtime"
)

// Channel is a medium joining devices. Two devices make a point-to-point
// link, more make a shared segment.
type Channel struct {
	id      int
	name    string
	network *Network

	delay simtime.Time
	rate  uint64
	up    bool

	devices []*Device
}

// ID returns the channel ID.
func (c *Channel) ID() int {
	return c.id
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Delay returns the propagation delay.
func (c *Channel) Delay() simtime.Time {
	return c.delay
}

// DataRate returns the data rate in bits per second.
func (c *Channel) DataRate() uint64 {
	return c.rate
}

// NumDevices returns the number of attached devices.
func (c *Channel) NumDevices() int {
	return len(c.devices)
}

// Device returns the device attached at position i.
func (c *Channel) Device(i int) *Device {
	return c.devices[i]
}

// Devices returns the attached devices in attach order.
func (c *Channel) Devices() []*Device {
	return c.devices
}

// Attach connects a device to the channel.
func (c *Channel) Attach(d *Device) {
	switch {
	case d.kind != KindNetDevice:
		panic(fmt.Sprintf("netmodel: cannot attach %s device %s", d.kind, d))
	case d.channel != nil:
		panic(fmt.Sprintf("netmodel: %s is already attached to %s", d, d.channel.name))
	}

	d.channel = c
	c.devices = append(c.devices, d)

	c.network.notify(Change{Kind: ChangeChannelAttached, Device: d, Channel: c})
}

// IsUp tells if the link is up.
func (c *Channel) IsUp() bool {
	return c.up
}

// SetUp changes the link state.
func (c *Channel) SetUp(up bool) {
	if c.up == up {
		return
	}

	c.up = up

	kind := ChangeLinkDown
	if up {
		kind = ChangeLinkUp
	}

	c.network.notify(Change{Kind: kind, Channel: c})
}

// AdjacentDevices returns the devices local can reach over the channel.
// Bridges are transparent: a bridged device is replaced by the devices
// reachable through the other ports of its bridge, in port order.
func (c *Channel) AdjacentDevices(local *Device) []*Device {
	var adjacent []*Device

	for _, a := range c.Adjacencies(local) {
		adjacent = append(adjacent, a.Device)
	}

	return adjacent
}

// Adjacency is a device reachable over a channel. Up is false when a
// channel or a bridge on the way is down.
type Adjacency struct {
	Device *Device
	Delay  simtime.Time
	Up     bool
}

// Adjacencies is AdjacentDevices with the delay and state of the path to
// each device.
func (c *Channel) Adjacencies(local *Device) []Adjacency {
	var adjacent []Adjacency

	c.walkAdjacent(local, simtime.Zero(), true, map[*Channel]bool{},
		func(d *Device, delay simtime.Time, up bool) {
			adjacent = append(adjacent, Adjacency{Device: d, Delay: delay, Up: up})
		})

	return adjacent
}

func (c *Channel) walkAdjacent(
	local *Device,
	delay simtime.Time,
	up bool,
	visited map[*Channel]bool,
	fn func(d *Device, delay simtime.Time, up bool),
) {
	visited[c] = true
	delay = delay.Add(c.delay)
	up = up && c.up

	for _, remote := range c.devices {
		if remote == local {
			continue
		}

		bridge := remote.bridge
		if bridge == nil {
			fn(remote, delay, up)
			continue
		}

		for _, port := range bridge.ports {
			if port == remote || port.channel == nil || visited[port.channel] {
				continue
			}

			port.channel.walkAdjacent(port, delay, up && bridge.up, visited, fn)
		}
	}
}

func (c *Channel) txTime(size int) simtime.Time {
	if c.rate == 0 || size <= 0 {
		return simtime.Zero()
	}
	return simtime.FromInteger(int64(size)*8, simtime.S).DivInt(int64(c.rate))
}

func (c *Channel) transmit(from *Device, p *Packet, gateway netip.Addr) error {
	var (
		target *Device
		delay  simtime.Time
		up     bool
	)

	c.walkAdjacent(from, simtime.Zero(), true, map[*Channel]bool{},
		func(d *Device, dl simtime.Time, u bool) {
			if target == nil && d.HasAddress(gateway) {
				target, delay, up = d, dl, u
			}
		})

	switch {
	case target == nil:
		return fmt.Errorf("%w: %s on %s", ErrUnreachableGateway, gateway, c.name)
	case !up:
		return ErrLinkDown
	}

	delay = delay.Add(c.txTime(p.Size))

	c.network.sim.ScheduleWithContext(uint32(target.node.id), delay, func() {
		target.receive(p)
	})

	return nil
}
