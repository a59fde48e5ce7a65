package server

import (
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/presence"
	"github.com/park285/dame-server/internal/wire"
)

// Publisher fans room events out to connected sessions. Offline recipients
// are skipped; a reconnect resyncs them from a snapshot.
type Publisher struct {
	presence *presence.Registry
}

var _ match.Publisher = (*Publisher)(nil)

func NewPublisher(reg *presence.Registry) *Publisher {
	return &Publisher{presence: reg}
}

func (p *Publisher) Publish(roomID string, to []string, ev match.Event) {
	outs := wire.Translate(roomID, ev)
	for _, id := range to {
		for _, o := range outs {
			p.presence.Send(id, o.Event, o.Data)
		}
	}
	if _, ended := ev.(match.Ended); ended {
		p.presence.UnbindRoom(roomID)
	}
}
