package tracing

import (
	"github.com/sarchlab/nssim/hooking"
	"github.com/sarchlab/nssim/netmodel"
	"github.com/sarchlab/nssim/scheduler"
	"github.com/sarchlab/nssim/sim"
	"github.com/sarchlab/nssim/simtime"
)

// CollectTrace records every event s invokes. The buffered records are
// flushed when s is destroyed. Collecting into the same recorder twice
// panics.
func CollectTrace(s sim.Simulator, r *Recorder) {
	for _, h := range s.Hooks() {
		if h, ok := h.(*eventHook); ok && h.r == r {
			panic("tracing: simulator already traced by this recorder")
		}
	}

	s.AcceptHook(&eventHook{s: s, r: r})
	s.ScheduleDestroy(r.Flush)
}

type eventHook struct {
	s sim.Simulator
	r *Recorder
}

func (h *eventHook) Func(ctx hooking.HookCtx) {
	if ctx.Pos != sim.HookPosAfterEvent {
		return
	}

	ev := ctx.Item.(*scheduler.Event)

	h.r.RecordEvent(EventRecord{
		Seq:     h.s.GetEventCount(),
		Time:    simtime.FromSteps(ev.Key.Timestamp).Seconds(),
		Steps:   ev.Key.Timestamp,
		Context: ev.Key.Context,
	})
}

// WatchNetwork records the packets delivered to or dropped by the nodes of
// n. Nodes added later are not watched.
func WatchNetwork(n *netmodel.Network, r *Recorder) {
	s := n.Simulator()

	for _, node := range n.Nodes() {
		node := node

		node.OnReceive(func(p *netmodel.Packet) {
			r.RecordPacket(packetRecord(s, node, p, "delivered", nil))
		})

		node.OnDrop(func(p *netmodel.Packet, err error) {
			r.RecordPacket(packetRecord(s, node, p, "dropped", err))
		})
	}
}

func packetRecord(
	s sim.Simulator,
	node *netmodel.Node,
	p *netmodel.Packet,
	kind string,
	err error,
) PacketRecord {
	rec := PacketRecord{
		UID:  p.UID,
		Kind: kind,
		Node: node.Name(),
		Time: s.Now().Seconds(),
		Dst:  p.Dst.String(),
		Size: p.Size,
		Hops: len(p.Hops),
	}

	if p.Src.IsValid() {
		rec.Src = p.Src.String()
	}

	if err != nil {
		rec.Reason = err.Error()
	}

	return rec
}
