// Package netmodel is a small network model for routing studies. It keeps
// nodes, their devices, the channels the devices attach to and the IPv4
// addresses assigned to them. Packets travel between nodes as simulator
// events. Routing is pluggable through the Router interface.
package netmodel

import (
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
)

// NodeID identifies a node in its network. IDs are dense and start at 0.
type NodeID uint32

// ChangeKind tells what kind of topology change happened.
type ChangeKind int

// The topology changes reported to listeners.
const (
	ChangeDeviceAdded ChangeKind = iota
	ChangeChannelAttached
	ChangeInterfaceUp
	ChangeInterfaceDown
	ChangeLinkUp
	ChangeLinkDown
	ChangeAddressAdded
	ChangeAddressRemoved
	ChangeBridgeAdded
)

var changeKindNames = map[ChangeKind]string{
	ChangeDeviceAdded:     "device-added",
	ChangeChannelAttached: "channel-attached",
	ChangeInterfaceUp:     "interface-up",
	ChangeInterfaceDown:   "interface-down",
	ChangeLinkUp:          "link-up",
	ChangeLinkDown:        "link-down",
	ChangeAddressAdded:    "address-added",
	ChangeAddressRemoved:  "address-removed",
	ChangeBridgeAdded:     "bridge-added",
}

func (k ChangeKind) String() string {
	if name, ok := changeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// Change describes one topology change. Channel is set for link changes,
// Device for the others.
type Change struct {
	Kind    ChangeKind
	Device  *Device
	Channel *Channel
}

// ChangeListener is notified after every topology change.
type ChangeListener func(Change)

// Network owns nodes and channels and delivers packets through a simulator.
type Network struct {
	sim sim.Simulator

	nodes     []*Node
	channels  []*Channel
	listeners []ChangeListener

	nextPacketID atomic.Uint64
}

// NewNetwork creates an empty network whose packets travel through s.
func NewNetwork(s sim.Simulator) *Network {
	return &Network{sim: s}
}

// Simulator returns the simulator the network schedules deliveries on.
func (n *Network) Simulator() sim.Simulator {
	return n.sim
}

// AddNode creates a node. Every node starts with a loopback device at index
// 0 that owns 127.0.0.1/8.
func (n *Network) AddNode(name string) *Node {
	node := &Node{
		id:      NodeID(len(n.nodes)),
		name:    name,
		network: n,
	}

	if node.name == "" {
		node.name = fmt.Sprintf("n%d", node.id)
	}

	lo := node.addDevice("lo", KindLoopback)
	lo.addrs = append(lo.addrs, netip.MustParsePrefix("127.0.0.1/8"))

	n.nodes = append(n.nodes, node)

	return node
}

// Nodes returns the nodes in ID order.
func (n *Network) Nodes() []*Node {
	return n.nodes
}

// NumNodes returns the number of nodes.
func (n *Network) NumNodes() int {
	return len(n.nodes)
}

// Node returns the node with the given ID, or nil.
func (n *Network) Node(id NodeID) *Node {
	if int(id) >= len(n.nodes) {
		return nil
	}
	return n.nodes[id]
}

// NodeByName returns the first node with the given name, or nil.
func (n *Network) NodeByName(name string) *Node {
	i := slices.IndexFunc(n.nodes, func(node *Node) bool {
		return node.name == name
	})
	if i < 0 {
		return nil
	}
	return n.nodes[i]
}

// NodeByAddress returns the node owning addr, or nil. Loopback addresses are
// not owned by any single node.
func (n *Network) NodeByAddress(addr netip.Addr) *Node {
	if addr.IsLoopback() {
		return nil
	}

	for _, node := range n.nodes {
		if node.DeviceByAddress(addr) != nil {
			return node
		}
	}

	return nil
}

// NewChannel creates a channel with the given propagation delay and data
// rate in bits per second. A zero rate makes transmission instantaneous.
func (n *Network) NewChannel(name string, delay simtime.Time, rate uint64) *Channel {
	c := &Channel{
		id:      len(n.channels),
		name:    name,
		network: n,
		delay:   delay,
		rate:    rate,
		up:      true,
	}

	if c.name == "" {
		c.name = fmt.Sprintf("ch%d", c.id)
	}

	n.channels = append(n.channels, c)

	return c
}

// Channels returns the channels in creation order.
func (n *Network) Channels() []*Channel {
	return n.channels
}

// Connect links two nodes with a new point-to-point channel, adding one
// device to each node.
func (n *Network) Connect(a, b *Node, delay simtime.Time, rate uint64) (*Channel, *Device, *Device) {
	c := n.NewChannel("", delay, rate)

	da := a.AddDevice("")
	db := b.AddDevice("")

	c.Attach(da)
	c.Attach(db)

	return c, da, db
}

// OnChange registers a listener for topology changes.
func (n *Network) OnChange(l ChangeListener) {
	n.listeners = append(n.listeners, l)
}

func (n *Network) notify(c Change) {
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		fields := logrus.Fields{"change": c.Kind}
		if c.Device != nil {
			fields["device"] = c.Device.String()
		}
		if c.Channel != nil {
			fields["channel"] = c.Channel.name
		}
		logrus.WithFields(fields).Debug("netmodel: topology changed")
	}

	for _, l := range n.listeners {
		l(c)
	}
}

func (n *Network) newPacketID() uint64 {
	return n.nextPacketID.Add(1)
}
