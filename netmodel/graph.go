package netmodel

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/sarchlab/nssim/simtime"
)

// Graph returns the node adjacency of the network as a gonum graph. Graph
// node IDs are node IDs. Only usable hops are included: both interfaces up
// and every traversed link up.
func (n *Network) Graph() graph.Undirected {
	g := simple.NewUndirectedGraph()

	for _, node := range n.nodes {
		g.AddNode(simple.Node(node.id))
	}

	for _, node := range n.nodes {
		for _, d := range node.devices {
			if d.kind != KindNetDevice || d.channel == nil || !d.up {
				continue
			}

			d.channel.walkAdjacent(d, simtime.Zero(), true, map[*Channel]bool{},
				func(remote *Device, _ simtime.Time, up bool) {
					if !up || !remote.up || remote.node == node {
						return
					}

					g.SetEdge(g.NewEdge(simple.Node(node.id), simple.Node(remote.node.id)))
				})
		}
	}

	return g
}

// ShortestHops returns a minimum-hop node sequence from one node to another,
// both ends included, or nil if the destination is unreachable.
func (n *Network) ShortestHops(from, to *Node) []NodeID {
	g := n.Graph()

	tree := path.DijkstraFrom(simple.Node(from.id), g)

	nodes, _ := tree.To(int64(to.id))
	if len(nodes) == 0 {
		return nil
	}

	hops := make([]NodeID, 0, len(nodes))
	for _, node := range nodes {
		hops = append(hops, NodeID(node.ID()))
	}

	return hops
}
