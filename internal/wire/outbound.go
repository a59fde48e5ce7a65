package wire

import (
	"time"

	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/pkg/damedto"
)

// Outbound is one event ready to send.
type Outbound struct {
	Event string
	Data  any
}

// Translate maps a room event to the client events it produces. It runs on
// the room goroutine, so everything is copied into DTOs here.
func Translate(roomID string, ev match.Event) []Outbound {
	switch e := ev.(type) {
	case match.Started:
		amt, cur := stakeDTO(e.Stake)
		return []Outbound{{damedto.EventStarted, damedto.Started{
			GameID:      roomID,
			Players:     PlayersDTO(e.Players),
			Board:       BoardDTO(e.Board),
			CurrentTurn: ColorName(e.Turn),
			BetAmount:   amt,
			BetCurrency: cur,
			Timer:       TimerDTO(e.Clocks),
		}}}
	case match.MoveMade:
		return []Outbound{
			{damedto.EventMoveMade, damedto.MoveMade{
				GameID:      roomID,
				Move:        MoveDTO(e.Move),
				Board:       BoardDTO(e.Board),
				CurrentTurn: ColorName(e.Turn),
				MoveHistory: HistoryDTO(e.History),
			}},
			{damedto.EventSoundPlay, damedto.Sound{Sound: soundFor(e.Move)}},
		}
	case match.DrawOffered:
		return []Outbound{{damedto.EventDrawOffered, damedto.DrawOffered{GameID: roomID, By: e.By.DisplayName}}}
	case match.ChatPosted:
		return []Outbound{{damedto.EventChatNew, damedto.ChatMessage{
			GameID:    roomID,
			UserID:    e.Message.SenderID,
			Username:  e.Message.DisplayName,
			Message:   e.Message.Text,
			Timestamp: e.Message.At.UnixMilli(),
		}}}
	case match.EmojiPosted:
		return []Outbound{{damedto.EventChatEmoji, damedto.Emoji{
			GameID: roomID, UserID: e.PlayerID, Emoji: e.Emoji, Timestamp: e.At.UnixMilli(),
		}}}
	case match.TimerUpdate:
		return []Outbound{{damedto.EventTimerUpdate, damedto.TimerUpdate{GameID: roomID, White: e.Clocks.Light, Black: e.Clocks.Dark}}}
	case match.PlayerDisconnected:
		return []Outbound{{damedto.EventPlayerDisconnected, damedto.PlayerDisconnected{
			GameID: roomID, PlayerID: e.PlayerID, ReconnectTime: int64(e.Grace / time.Second),
		}}}
	case match.PlayerReconnected:
		return []Outbound{{damedto.EventPlayerReconnected, damedto.PlayerReconnected{GameID: roomID, PlayerID: e.PlayerID}}}
	case match.Ended:
		return []Outbound{
			{damedto.EventEnded, EndedDTO(roomID, e)},
			{damedto.EventSoundPlay, damedto.Sound{Sound: "game-end"}},
		}
	default:
		return nil
	}
}

func soundFor(m draughts.Move) string {
	if m.IsCapture() {
		return "capture"
	}
	return "move"
}

func EndedDTO(roomID string, e match.Ended) damedto.Ended {
	out := damedto.Ended{
		GameID:      roomID,
		Result:      string(e.Outcome.Reason),
		Winner:      ColorName(e.Outcome.Winner),
		FinalBoard:  BoardDTO(e.Board),
		MoveHistory: HistoryDTO(e.History),
	}
	switch e.Outcome.Winner {
	case draughts.Light:
		out.WinnerID = e.Players[0].ID
	case draughts.Dark:
		out.WinnerID = e.Players[1].ID
	}
	if s := e.Settlement; s != nil {
		if s.Payout != nil {
			amt := s.Payout.Amount
			out.Winnings = &amt
			out.Currency = s.Payout.Currency
		}
		for _, rc := range s.Ratings {
			out.Ratings = append(out.Ratings, damedto.RatingChange{PlayerID: rc.PlayerID, Before: rc.Before, After: rc.After})
		}
	}
	return out
}
