package netmodel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/nssim/simtime"
)

// ErrBadTopology is wrapped by every topology description error.
var ErrBadTopology = errors.New("netmodel: bad topology")

// Format is the encoding of a topology description.
type Format int

// Supported formats.
const (
	FormatYAML Format = iota
	FormatJSON
)

// Topology describes a network.
//
//	nodes: [n0, n1, n2]
//	links:
//	  - nodes: [n0, n1]
//	    delay: 2ms
//	    rate: 5000000
//	  - nodes: [n1, n2]
//	    addresses: [10.0.0.1/30, 10.0.0.2/30]
//
// Links without addresses get 10.1.<link>.<endpoint>/24, counting from 1.
// Devices turned into bridge ports get no address. Unnamed links are
// called ch<index> and bridges refer to links by name.
type Topology struct {
	Nodes   []string     `json:"nodes" yaml:"nodes"`
	Links   []LinkDesc   `json:"links" yaml:"links"`
	Bridges []BridgeDesc `json:"bridges,omitempty" yaml:"bridges,omitempty"`
}

// LinkDesc describes one channel and the nodes it joins.
type LinkDesc struct {
	Name      string   `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes     []string `json:"nodes" yaml:"nodes"`
	Delay     string   `json:"delay,omitempty" yaml:"delay,omitempty"`
	Rate      uint64   `json:"rate,omitempty" yaml:"rate,omitempty"`
	Addresses []string `json:"addresses,omitempty" yaml:"addresses,omitempty"`
	Down      bool     `json:"down,omitempty" yaml:"down,omitempty"`
}

// BridgeDesc turns the devices a node has on the named links into the
// ports of one bridge.
type BridgeDesc struct {
	Node  string   `json:"node" yaml:"node"`
	Links []string `json:"links" yaml:"links"`
}

// ReadTopology reads a description file. Files ending in .json are decoded
// as JSON, everything else as YAML.
func ReadTopology(filename string) (*Topology, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	format := FormatYAML
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		format = FormatJSON
	}

	return DecodeTopology(bytes.NewReader(data), format)
}

// DecodeTopology decodes a description. Unknown fields are rejected.
func DecodeTopology(r io.Reader, format Format) (*Topology, error) {
	t := &Topology{}

	var err error
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		err = dec.Decode(t)
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		err = dec.Decode(t)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadTopology, err)
	}

	return t, nil
}

// LoadTopology reads a description file and builds it into n.
func LoadTopology(filename string, n *Network) error {
	t, err := ReadTopology(filename)
	if err != nil {
		return err
	}

	return t.Build(n)
}

// Build adds the described nodes, links and bridges to n.
func (t *Topology) Build(n *Network) error {
	if err := t.validate(); err != nil {
		return err
	}

	nodes := make(map[string]*Node, len(t.Nodes))
	for _, name := range t.Nodes {
		nodes[name] = n.AddNode(name)
	}

	channels := make(map[string]*Channel, len(t.Links))
	devices := make([][]*Device, len(t.Links))

	for i, l := range t.Links {
		delay := simtime.Zero()
		if l.Delay != "" {
			var err error
			if delay, err = simtime.Parse(l.Delay); err != nil {
				return fmt.Errorf("%w: link %d: %v", ErrBadTopology, i, err)
			}
		}

		c := n.NewChannel(l.Name, delay, l.Rate)
		channels[c.name] = c

		for _, name := range l.Nodes {
			d := nodes[name].AddDevice("")
			c.Attach(d)
			devices[i] = append(devices[i], d)
		}
	}

	for _, b := range t.Bridges {
		node := nodes[b.Node]

		var ports []*Device
		for _, link := range b.Links {
			c, ok := channels[link]
			if !ok {
				return fmt.Errorf("%w: bridge on %s: unknown link %q",
					ErrBadTopology, b.Node, link)
			}

			i := slices.IndexFunc(c.devices, func(d *Device) bool {
				return d.node == node
			})
			if i < 0 {
				return fmt.Errorf("%w: bridge on %s: node is not on link %q",
					ErrBadTopology, b.Node, link)
			}

			ports = append(ports, c.devices[i])
		}

		node.AddBridge("", ports...)
	}

	for i, l := range t.Links {
		if err := assignAddresses(i, l, devices[i]); err != nil {
			return err
		}

		if l.Down {
			devices[i][0].channel.SetUp(false)
		}
	}

	return nil
}

func assignAddresses(linkIndex int, l LinkDesc, devices []*Device) error {
	for j, d := range devices {
		if d.bridge != nil {
			continue
		}

		var (
			p   netip.Prefix
			err error
		)

		if len(l.Addresses) > 0 {
			p, err = netip.ParsePrefix(l.Addresses[j])
		} else {
			p, err = netip.ParsePrefix(
				fmt.Sprintf("10.1.%d.%d/24", linkIndex+1, j+1))
		}

		if err != nil {
			return fmt.Errorf("%w: link %d: %v", ErrBadTopology, linkIndex, err)
		}

		d.AddAddress(p)
	}

	return nil
}

func (t *Topology) validate() error {
	known := make(map[string]bool, len(t.Nodes))
	for _, name := range t.Nodes {
		if name == "" || known[name] {
			return fmt.Errorf("%w: empty or duplicated node name %q", ErrBadTopology, name)
		}
		known[name] = true
	}

	links := map[string]bool{}
	for i, l := range t.Links {
		if len(l.Nodes) < 2 {
			return fmt.Errorf("%w: link %d joins fewer than two nodes", ErrBadTopology, i)
		}

		for _, name := range l.Nodes {
			if !known[name] {
				return fmt.Errorf("%w: link %d: unknown node %q", ErrBadTopology, i, name)
			}
		}

		if len(l.Addresses) > 0 && len(l.Addresses) != len(l.Nodes) {
			return fmt.Errorf("%w: link %d: %d addresses for %d nodes",
				ErrBadTopology, i, len(l.Addresses), len(l.Nodes))
		}

		if len(t.Links) > 255 && len(l.Addresses) == 0 {
			return fmt.Errorf("%w: link %d needs explicit addresses", ErrBadTopology, i)
		}

		if l.Name != "" {
			if links[l.Name] {
				return fmt.Errorf("%w: duplicated link name %q", ErrBadTopology, l.Name)
			}
			links[l.Name] = true
		}
	}

	for _, b := range t.Bridges {
		if !known[b.Node] {
			return fmt.Errorf("%w: bridge on unknown node %q", ErrBadTopology, b.Node)
		}
	}

	return nil
}
