package wire

import (
	"errors"
	"unicode/utf8"

	"github.com/park285/dame-server/internal/auth"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/msgcat"
	"github.com/park285/dame-server/internal/presence"
	"github.com/park285/dame-server/pkg/damedto"
)

// Error codes sent to clients.
const (
	CodeAuthentication    = "AuthenticationError"
	CodeInvalidMove       = "InvalidMoveError"
	CodeTargetUnavailable = "TargetUnavailableError"
	CodeRoomNotFound      = "RoomNotFoundError"
	CodeBadRequest        = "BadRequestError"
	CodeConflict          = "ConflictError"
	CodeInternal          = "InternalError"
)

// ErrRoomCreate marks a failure to construct a room after an accept.
var ErrRoomCreate = errors.New("room construction failed")

type errorRule struct {
	target    error
	code      string
	key       string
	retryable bool
}

// Order matters: the specific move errors come before ErrInvalidMove.
var errorRules = []errorRule{
	{auth.ErrUnauthenticated, CodeAuthentication, "error.unauthenticated", false},
	{match.ErrNotYourTurn, CodeInvalidMove, "error.not_your_turn", false},
	{match.ErrNotYourPiece, CodeInvalidMove, "error.not_your_piece", false},
	{match.ErrIllegalMove, CodeInvalidMove, "error.illegal_move", false},
	{match.ErrInvalidMove, CodeInvalidMove, "error.illegal_move", false},
	{presence.ErrPeerUnavailable, CodeTargetUnavailable, "error.peer_unavailable", false},
	{match.ErrRoomNotFound, CodeRoomNotFound, "error.room_not_found", false},
	{match.ErrNotInRoom, CodeRoomNotFound, "error.not_in_room", false},
	{match.ErrGameNotActive, CodeConflict, "error.game_not_active", false},
	{match.ErrNoDrawOffer, CodeConflict, "error.no_draw_offer", false},
	{presence.ErrInvitationNotFound, CodeConflict, "error.invitation_not_found", false},
	{presence.ErrSelfInvite, CodeBadRequest, "error.bad_request", false},
	{ErrRoomCreate, CodeInternal, "error.room_create_failed", true},
	{ErrAlreadyInGame, CodeConflict, "error.already_in_game", false},
	{ErrBadRequest, CodeBadRequest, "error.bad_request", false},
	{ErrBadBoard, CodeBadRequest, "error.bad_request", false},
}

// ErrAlreadyInGame rejects an invite or accept from a player bound to a live room.
var ErrAlreadyInGame = errors.New("player already in a game")

// ErrorDTO maps err onto the client taxonomy with a catalog message.
func ErrorDTO(cat *msgcat.Catalog, err error) damedto.DomainError {
	if errors.Is(err, ErrUnknownEvent) {
		var event string
		var ue *unknownEventError
		if errors.As(err, &ue) {
			event = ue.event
		}
		return damedto.DomainError{Code: CodeBadRequest, Message: cat.Text("error.unknown_event", map[string]any{"Event": event})}
	}
	if errors.Is(err, match.ErrInvalidChat) {
		return damedto.DomainError{Code: CodeBadRequest, Message: cat.Text("chat.too_long", map[string]any{"Max": match.MaxChatRunes})}
	}
	for _, r := range errorRules {
		if errors.Is(err, r.target) {
			return damedto.DomainError{Code: r.code, Message: cat.Text(r.key, nil), Retryable: r.retryable}
		}
	}
	return damedto.DomainError{Code: CodeInternal, Message: cat.Text("error.internal", nil), Retryable: true}
}

type unknownEventError struct{ event string }

func (e *unknownEventError) Error() string { return "unknown event " + e.event }
func (e *unknownEventError) Unwrap() error { return ErrUnknownEvent }

func truncateEvent(s string) string {
	const max = 64
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
