package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/pkg/damedto"
)

var (
	ErrBadRequest   = errors.New("malformed request")
	ErrUnknownEvent = errors.New("unknown event")
)

// Inbound is the closed set of client messages.
type Inbound interface{ isInbound() }

type Invite struct {
	FriendID string
	Stake    *match.Stake
}

type Accept struct{ InvitationID string }

type Decline struct{ InvitationID string }

// RoomMessage is addressed to one live room.
type RoomMessage struct {
	GameID string
	Kind   string
	Move   draughts.Move
	Text   string
}

func (Invite) isInbound()      {}
func (Accept) isInbound()      {}
func (Decline) isInbound()     {}
func (RoomMessage) isInbound() {}

// Command turns a room message into the state machine command for playerID.
func (m RoomMessage) Command(playerID string) match.Command {
	switch m.Kind {
	case damedto.EventMove:
		return match.PlayMove{PlayerID: playerID, Move: m.Move}
	case damedto.EventOfferDraw:
		return match.OfferDraw{PlayerID: playerID}
	case damedto.EventAcceptDraw:
		return match.AcceptDraw{PlayerID: playerID}
	case damedto.EventResign:
		return match.Resign{PlayerID: playerID}
	case damedto.EventChatMessage:
		return match.SendChat{PlayerID: playerID, Text: m.Text}
	case damedto.EventChatEmoji:
		return match.SendEmoji{PlayerID: playerID, Emoji: m.Text}
	default:
		return nil
	}
}

// Decode parses one socket frame. The returned event name is set whenever
// the envelope itself parsed, even if the payload did not.
func Decode(raw []byte) (string, Inbound, error) {
	var env damedto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	event := strings.TrimSpace(env.Event)
	in, err := decodePayload(event, env.Data)
	return event, in, err
}

func decodePayload(event string, data json.RawMessage) (Inbound, error) {
	switch event {
	case damedto.EventInvite:
		var p damedto.InvitePayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.FriendID) == "" {
			return nil, fmt.Errorf("%w: friendId required", ErrBadRequest)
		}
		inv := Invite{FriendID: strings.TrimSpace(p.FriendID)}
		if p.BetAmount != nil {
			if *p.BetAmount < 0 {
				return nil, fmt.Errorf("%w: negative bet", ErrBadRequest)
			}
			if *p.BetAmount > 0 {
				inv.Stake = &match.Stake{Amount: *p.BetAmount, Currency: strings.TrimSpace(p.BetCurrency)}
			}
		}
		return inv, nil
	case damedto.EventAccept, damedto.EventDecline:
		var p damedto.InvitationReply
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		if p.InvitationID == "" {
			return nil, fmt.Errorf("%w: invitationId required", ErrBadRequest)
		}
		if event == damedto.EventAccept {
			return Accept{InvitationID: p.InvitationID}, nil
		}
		return Decline{InvitationID: p.InvitationID}, nil
	case damedto.EventMove:
		var p damedto.MovePayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		return roomMessage(event, p.GameID, MoveFromDTO(p.Move), "")
	case damedto.EventOfferDraw, damedto.EventAcceptDraw, damedto.EventResign:
		var p damedto.GamePayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		return roomMessage(event, p.GameID, draughts.Move{}, "")
	case damedto.EventChatMessage:
		var p damedto.ChatPayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		return roomMessage(event, p.GameID, draughts.Move{}, p.Message)
	case damedto.EventChatEmoji:
		var p damedto.EmojiPayload
		if err := unmarshal(data, &p); err != nil {
			return nil, err
		}
		return roomMessage(event, p.GameID, draughts.Move{}, p.Emoji)
	default:
		return nil, &unknownEventError{event: truncateEvent(event)}
	}
}

func roomMessage(kind, gameID string, mv draughts.Move, text string) (Inbound, error) {
	if strings.TrimSpace(gameID) == "" {
		return nil, fmt.Errorf("%w: gameId required", ErrBadRequest)
	}
	return RoomMessage{GameID: gameID, Kind: kind, Move: mv, Text: text}, nil
}

func unmarshal(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrBadRequest)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// Encode frames an outbound event.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(damedto.Envelope{Event: event, Data: raw})
}
