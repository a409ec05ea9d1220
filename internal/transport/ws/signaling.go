package ws

import (
	"encoding/json"
	"log/slog"

	"github.com/cwrk-planet/board-service/internal/domain"
	"github.com/cwrk-planet/board-service/internal/session"
)

// Voice signaling is a pure relay: the server never inspects offers,
// answers or candidates, it only routes them to the target's current
// connection.

func (g *Gateway) handleVoiceJoin(cl *Client, raw json.RawMessage) error {
	var p roomRef
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, ident, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	return sess.Update(func(tx *session.Tx) error {
		part, found := tx.Participant(ident)
		if !found {
			return domain.ErrNotInRoom
		}
		g.hub.BroadcastExcept(tx.RoomID(), cl.ID(), Message{Type: TypeVoiceUserJoined, Payload: VoiceUserPayload{
			RoomID:   tx.RoomID(),
			UserID:   ident,
			Username: part.DisplayName,
		}})
		return nil
	})
}

func (g *Gateway) handleVoiceLeave(cl *Client, raw json.RawMessage) error {
	var p roomRef
	if err := decode(raw, &p); err != nil {
		return err
	}
	sess, ident, ok := g.member(cl, p.RoomID)
	if !ok {
		return nil
	}
	return sess.Update(func(tx *session.Tx) error {
		g.hub.BroadcastExcept(tx.RoomID(), cl.ID(), Message{Type: TypeVoiceUserLeft, Payload: VoiceUserPayload{
			RoomID: tx.RoomID(),
			UserID: ident,
		}})
		return nil
	})
}

// relayVoice builds the handler for offer, answer and ice-candidate. The
// sender field is always the server-side identity of the caller.
func (g *Gateway) relayVoice(outType string) handlerFunc {
	return func(cl *Client, raw json.RawMessage) error {
		var p VoiceSignalPayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		sess, ident, ok := g.member(cl, p.RoomID)
		if !ok {
			return nil
		}

		// target lookup and send share a step, so a reconnect cannot
		// slip in between
		return sess.Update(func(tx *session.Tx) error {
			target, found := tx.Participant(p.Target)
			if !found {
				slog.Debug("voice target not in room, dropped", "room", tx.RoomID(), "type", outType, "from", ident, "target", p.Target)
				return nil
			}
			delivered := g.hub.SendTo(target.ConnectionID, Message{Type: outType, Payload: VoiceRelayPayload{
				RoomID:  tx.RoomID(),
				Sender:  ident,
				Payload: p.Payload,
			}})
			if !delivered {
				slog.Debug("voice target connection gone, dropped", "room", tx.RoomID(), "type", outType, "target", p.Target, "conn", target.ConnectionID)
			}
			return nil
		})
	}
}
