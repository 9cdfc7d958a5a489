package xmpp

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	inats "github.com/aiox-platform/mindloop/internal/nats"
)

// KnowledgePublisher forwards operator input to the knowledge stream.
type KnowledgePublisher interface {
	PublishKnowledge(ctx context.Context, msg inats.KnowledgeMessage) error
}

// Handler processes incoming XMPP stanzas. Chat messages sent to the
// component become knowledge items: "/strategic <text>" feeds strategic
// knowledge, anything else is a research finding.
type Handler struct {
	publisher KnowledgePublisher
}

// NewHandler creates a new XMPP stanza handler. A nil publisher drops
// inbound messages.
func NewHandler(publisher KnowledgePublisher) *Handler {
	return &Handler{publisher: publisher}
}

// HandleMessage publishes the body of incoming <message> stanzas.
func (h *Handler) HandleMessage(s xmpp.Sender, p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}

	km, ok := ParseKnowledge(msg.From, msg.Body)
	if !ok {
		return
	}
	if msg.Id != "" {
		km.ID = "xmpp:" + msg.Id
	}
	if h.publisher == nil {
		slog.Debug("XMPP message dropped, no knowledge stream", "from", msg.From)
		return
	}

	slog.Debug("XMPP message received", "from", msg.From, "to", msg.To, "kind", km.Kind)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.publisher.PublishKnowledge(ctx, km); err != nil {
		slog.Error("publishing knowledge from XMPP", "error", err, "from", msg.From)
		h.reply(s, msg, "Could not record that, please retry.")
	}
}

// HandlePresence auto-approves subscribe requests.
func (h *Handler) HandlePresence(s xmpp.Sender, p stanza.Packet) {
	pres, ok := p.(stanza.Presence)
	if !ok {
		return
	}

	slog.Debug("XMPP presence received", "from", pres.From, "to", pres.To, "type", string(pres.Type))

	if pres.Type == "subscribe" {
		reply := stanza.Presence{
			Attrs: stanza.Attrs{
				From: pres.To,
				To:   pres.From,
				Type: "subscribed",
			},
		}
		if err := s.Send(reply); err != nil {
			slog.Error("sending presence subscribed reply", "error", err)
		}
	}
}

func (h *Handler) reply(s xmpp.Sender, to stanza.Message, body string) {
	msg := stanza.Message{
		Attrs: stanza.Attrs{
			From: to.To,
			To:   to.From,
			Type: "chat",
		},
		Body: body,
	}
	if err := s.Send(msg); err != nil {
		slog.Error("sending XMPP reply", "error", err)
	}
}

// ParseKnowledge turns a chat body into a knowledge message. Empty bodies
// are ignored.
func ParseKnowledge(from, body string) (inats.KnowledgeMessage, bool) {
	body = strings.TrimSpace(body)
	kind := "research"
	if rest, ok := strings.CutPrefix(body, "/strategic"); ok {
		kind = "strategic"
		body = strings.TrimSpace(rest)
	}
	if body == "" {
		return inats.KnowledgeMessage{}, false
	}
	return inats.KnowledgeMessage{
		Kind:    kind,
		Content: body,
		Source:  "xmpp:" + BareJID(from),
	}, true
}

// BareJID strips the resource part of a JID.
func BareJID(jid string) string {
	if idx := strings.Index(jid, "/"); idx >= 0 {
		return jid[:idx]
	}
	return jid
}
