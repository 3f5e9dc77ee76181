package core

import "go.uber.org/zap"

// ChannelDispatcher is the default CommandListener: it demultiplexes
// channel-bearing command payloads to the Channel each one was opened
// under (spec.md §4.6). The first two bytes of a channel-bearing
// payload are the channel id; the remainder is the fragment. An
// empty-remainder frame is the end-of-channel signal — it triggers
// OnEnd and retires the id.
type ChannelDispatcher struct {
	registry *Registry
	logger   *zap.SugaredLogger
}

// NewChannelDispatcher builds a dispatcher over registry, ready to be
// installed with Transport.AddListener.
func NewChannelDispatcher(registry *Registry, logger *zap.SugaredLogger) *ChannelDispatcher {
	return &ChannelDispatcher{registry: registry, logger: logger}
}

// OnPacket implements CommandListener. Commands outside channelCommands
// are ignored here — they are either request-only (no inbound
// counterpart) or are the caller's own responsibility to listen for
// directly via Transport.AddListener.
func (d *ChannelDispatcher) OnPacket(command byte, payload []byte) {
	if !channelCommands[command] {
		return
	}

	id, err := ChannelIDOf(payload)
	if err != nil {
		if d.logger != nil {
			d.logger.Warnw("dropping channel frame with truncated id", "command", command)
		}
		return
	}

	ch, ok := d.registry.Lookup(id)
	if !ok {
		if d.logger != nil {
			d.logger.Debugw("dropping frame for unknown or retired channel", "channel", id)
		}
		return
	}

	fragment := payload[2:]
	if len(fragment) == 0 {
		d.registry.Retire(id)
		ch.Listener.OnEnd(id)
		return
	}

	ch.Listener.OnData(id, fragment)
}
