package xmpp

import (
	"context"

	"github.com/google/uuid"
	"gosrc.io/xmpp/stanza"
)

type packetSender interface {
	Send(p stanza.Packet) error
}

// Avatar speaks by sending chat messages to the avatar's JID. Metadata has
// no XMPP representation and is dropped.
type Avatar struct {
	sender packetSender
	from   string
	to     string
}

// NewAvatar creates an avatar that sends from "<agent>@<component domain>".
func NewAvatar(c *Component, agent, avatarJID string) *Avatar {
	return &Avatar{sender: c, from: agent + "@" + c.Domain(), to: avatarJID}
}

func (a *Avatar) Send(ctx context.Context, text string, _ map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := stanza.Message{
		Attrs: stanza.Attrs{
			Id:   uuid.NewString(),
			From: a.from,
			To:   a.to,
			Type: "chat",
		},
		Body: text,
	}
	return a.sender.Send(msg)
}
