package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/obslog"
	"github.com/park285/dame-server/internal/presence"
	"github.com/park285/dame-server/internal/wire"
	"github.com/park285/dame-server/pkg/damedto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, err := s.identify(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.cfg.AllowedOrigins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("player_id", id.ID), zap.Error(err))
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	c := newClient(r.Context(), ws, id.ID)
	sess := presence.NewSession(s.player(r.Context(), id), c)
	if prev := s.cfg.Presence.Register(sess); prev != nil {
		if old, ok := prev.Sink().(*client); ok {
			old.kick(closeReplaced)
		}
	}
	go c.writeLoop()

	s.onConnect(c.ctx, sess)
	for {
		_, raw, err := ws.Read(c.ctx)
		if err != nil {
			break
		}
		s.dispatch(c.ctx, sess, raw)
	}
	s.onDisconnect(sess)

	status, reason := c.closeStatus()
	c.kick("closed")
	_ = ws.Close(status, reason)
}

func (s *Server) onConnect(ctx context.Context, sess *presence.Session) {
	me := sess.Player
	peers := s.cfg.Presence.ListOnlinePeers(me.ID)
	list := make([]damedto.Player, 0, len(peers))
	for _, p := range peers {
		list = append(list, wire.PlayerDTO(p, draughts.NoColor))
	}
	sess.Deliver(damedto.EventFriendsOnline, list)
	s.cfg.Presence.Broadcast(me.ID, damedto.EventFriendStatus, damedto.FriendStatus{
		UserID: me.ID, Username: me.DisplayName, IsOnline: true,
	})

	roomID, ok := s.cfg.Presence.RoomOf(me.ID)
	if !ok {
		return
	}
	if err := s.cfg.Matches.Submit(ctx, roomID, match.Join{PlayerID: me.ID, ConnID: sess.ConnID}); err != nil {
		if errors.Is(err, match.ErrRoomNotFound) {
			s.cfg.Presence.UnbindRoom(roomID)
			return
		}
		obslog.L().Warn("rejoin_failed", zap.String("player_id", me.ID), zap.String("room_id", roomID), zap.Error(err))
		return
	}
	st, err := s.cfg.Matches.Snapshot(ctx, roomID)
	if err != nil {
		return
	}
	if st.Status != match.StatusFinished {
		sess.Deliver(damedto.EventGameState, wire.Snapshot(st))
	}
}

// onDisconnect runs only for the connection that still owns the player slot.
func (s *Server) onDisconnect(sess *presence.Session) {
	me := sess.Player
	if !s.cfg.Presence.Unregister(me.ID, sess.ConnID) {
		return
	}
	s.cfg.Presence.Broadcast(me.ID, damedto.EventFriendStatus, damedto.FriendStatus{
		UserID: me.ID, Username: me.DisplayName, IsOnline: false,
	})
	roomID, ok := s.cfg.Presence.RoomOf(me.ID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.cfg.Matches.Submit(ctx, roomID, match.Disconnect{PlayerID: me.ID, ConnID: sess.ConnID}); err != nil {
		if errors.Is(err, match.ErrRoomNotFound) {
			s.cfg.Presence.UnbindRoom(roomID)
			return
		}
		obslog.L().Warn("disconnect_submit_failed", zap.String("player_id", me.ID), zap.String("room_id", roomID), zap.Error(err))
	}
}

func (s *Server) dispatch(ctx context.Context, sess *presence.Session, raw []byte) {
	event, in, err := wire.Decode(raw)
	if err == nil {
		switch m := in.(type) {
		case wire.Invite:
			err = s.invite(sess, m)
		case wire.Accept:
			err = s.accept(ctx, sess, m)
		case wire.Decline:
			err = s.decline(sess, m)
		case wire.RoomMessage:
			err = s.cfg.Matches.Submit(ctx, m.GameID, m.Command(sess.Player.ID))
		}
	}
	if err != nil {
		obslog.L().Debug("ws_request_rejected",
			zap.String("player_id", sess.Player.ID),
			zap.String("event", event),
			zap.Error(err),
		)
		sess.Deliver(damedto.EventError, wire.ErrorDTO(s.cfg.Catalog, err))
	}
}

// inGame reports whether playerID is bound to a room that is still live.
// Stale bindings are dropped.
func (s *Server) inGame(playerID string) bool {
	roomID, ok := s.cfg.Presence.RoomOf(playerID)
	if !ok {
		return false
	}
	if _, live := s.cfg.Matches.Get(roomID); live {
		return true
	}
	s.cfg.Presence.UnbindRoom(roomID)
	return false
}

func (s *Server) invite(sess *presence.Session, m wire.Invite) error {
	if s.inGame(sess.Player.ID) {
		return wire.ErrAlreadyInGame
	}
	inv, err := s.cfg.Presence.Invite(sess.Player.ID, m.FriendID, m.Stake)
	if err != nil {
		return err
	}
	amt, cur := stakeFields(inv.Stake)
	s.cfg.Presence.Send(inv.ToID, damedto.EventInvitation, damedto.Invitation{
		ID:          inv.ID,
		From:        wire.PlayerDTO(inv.From, draughts.NoColor),
		To:          inv.ToID,
		BetAmount:   amt,
		BetCurrency: cur,
		Timestamp:   inv.CreatedAt.UnixMilli(),
	})
	sess.Deliver(damedto.EventInvitationSent, damedto.InvitationSent{InvitationID: inv.ID, To: inv.ToID})
	return nil
}

// accept consumes the invitation and seats both players. The inviter is
// passed first so the coin decides who plays light.
func (s *Server) accept(ctx context.Context, sess *presence.Session, m wire.Accept) error {
	inv, err := s.cfg.Presence.TakeInvitation(m.InvitationID, sess.Player.ID)
	if err != nil {
		return err
	}
	inviter, online := s.cfg.Presence.Get(inv.From.ID)
	if !online {
		return presence.ErrPeerUnavailable
	}
	if s.inGame(sess.Player.ID) || s.inGame(inviter.Player.ID) {
		return wire.ErrAlreadyInGame
	}

	room, err := s.cfg.Matches.Create(ctx, inviter.Player, sess.Player, inv.Stake)
	if err != nil {
		obslog.L().Error("room_create_failed", zap.String("invitation_id", inv.ID), zap.Error(err))
		dto := wire.ErrorDTO(s.cfg.Catalog, wire.ErrRoomCreate)
		inviter.Deliver(damedto.EventError, dto)
		sess.Deliver(damedto.EventError, dto)
		return nil
	}
	s.cfg.Presence.BindRoom(room.ID(), inviter.Player.ID, sess.Player.ID)
	go s.unbindWhenDone(room)

	for _, p := range []*presence.Session{inviter, sess} {
		if err := room.Submit(ctx, match.Join{PlayerID: p.Player.ID, ConnID: p.ConnID}); err != nil {
			obslog.L().Warn("room_join_failed", zap.String("room_id", room.ID()), zap.String("player_id", p.Player.ID), zap.Error(err))
		}
	}
	return nil
}

// Adopt binds players of rooms revived from the snapshot store so their next
// connection rejoins.
func (s *Server) Adopt(states []*match.State) {
	for _, st := range states {
		room, ok := s.cfg.Matches.Get(st.ID)
		if !ok {
			continue
		}
		s.cfg.Presence.BindRoom(st.ID, st.Players[0].ID, st.Players[1].ID)
		go s.unbindWhenDone(room)
	}
}

func (s *Server) unbindWhenDone(room *match.Room) {
	<-room.Done()
	s.cfg.Presence.UnbindRoom(room.ID())
}

func (s *Server) decline(sess *presence.Session, m wire.Decline) error {
	inv, err := s.cfg.Presence.Decline(m.InvitationID, sess.Player.ID)
	if err != nil {
		return err
	}
	s.cfg.Presence.Send(inv.From.ID, damedto.EventInvitationDeclined, damedto.InvitationDeclined{By: sess.Player.DisplayName})
	return nil
}

func stakeFields(st *match.Stake) (*float64, string) {
	if st == nil {
		return nil, ""
	}
	amt := st.Amount
	return &amt, st.Currency
}
