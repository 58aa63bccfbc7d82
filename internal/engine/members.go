package engine

import (
	tea "github.com/charmbracelet/bubbletea"

	"noisechat/internal/api"
)

type membersDoneMsg struct {
	room string
	resp api.RoomInfoResponse
	err  error
}

func (e *Engine) membersCmd(roomID string) tea.Cmd {
	if roomID == "" {
		return nil
	}
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.RoomInfo(ctx, roomID)
		return membersDoneMsg{room: roomID, resp: resp, err: err}
	}
}

// handleMembers replaces the member list wholesale. A response for a room
// that is no longer active is dropped; a failure keeps the last list.
func (e *Engine) handleMembers(msg membersDoneMsg) tea.Cmd {
	log := e.logger("engine.members")
	if msg.err != nil {
		log.Debug().Err(msg.err).Str("room", msg.room).Msg("member refresh failed")
		return nil
	}
	if msg.room != e.state.ActiveRoomID {
		log.Debug().Str("room", msg.room).Str("active", e.state.ActiveRoomID).Msg("drop stale member list")
		return nil
	}
	members := make([]api.Member, len(msg.resp.Room.Members))
	copy(members, msg.resp.Room.Members)
	e.view.Members = members
	if name := msg.resp.Room.Name; name != "" {
		e.view.ActiveRoomName = name
	}
	return nil
}
