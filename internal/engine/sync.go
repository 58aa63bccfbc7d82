package engine

import (
	tea "github.com/charmbracelet/bubbletea"

	"noisechat/internal/api"
)

type syncDoneMsg struct {
	room string
	resp api.MessagesResponse
	err  error
}

// resolveSyncRoom decides which room a message poll targets: the joined
// room, then the location parameter, then the room behind the displayed
// name, then main. The location leads the joined room only while a
// navigation join is in flight, and polling it early would be dropped.
func (e *Engine) resolveSyncRoom() string {
	if e.state.ActiveRoomID != "" {
		return e.state.ActiveRoomID
	}
	if room := e.loc.Room(); room != "" {
		return room
	}
	if room, ok := e.state.roomByName(e.view.ActiveRoomName); ok && e.view.ActiveRoomName != "" {
		return room.ID
	}
	return MainRoomID
}

func (e *Engine) syncCmd(roomID string) tea.Cmd {
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.Messages(ctx, roomID)
		return syncDoneMsg{room: roomID, resp: resp, err: err}
	}
}

// handleSync merges a full message snapshot into the view. The whole
// history comes back every tick; the dedup cache keeps the merge
// idempotent and the server order is kept as is.
func (e *Engine) handleSync(msg syncDoneMsg) tea.Cmd {
	log := e.logger("engine.sync")
	if msg.err != nil {
		log.Debug().Err(msg.err).Str("room", msg.room).Msg("message poll failed")
		return nil
	}
	if !e.state.Session.Connected {
		log.Debug().Str("room", msg.room).Msg("drop snapshot after disconnect")
		return nil
	}
	if e.syncIsStale(msg.room) {
		log.Debug().Str("room", msg.room).Str("active", e.state.ActiveRoomID).Msg("drop stale snapshot")
		return nil
	}
	if !msg.resp.Connected {
		// The backend lost the session before the status loop noticed.
		return e.statusCmd()
	}

	messages, notices := e.view.Counts()
	if messages == 0 && notices <= 1 && len(msg.resp.Messages) > 0 {
		e.resetView()
	}

	appended := 0
	for _, m := range msg.resp.Messages {
		if m.Type.IsSystem() {
			if e.cache.ShouldDisplayNotice(m.Content) {
				e.view.Entries = append(e.view.Entries, Entry{Kind: EntryNotice, Text: m.Content, Message: m})
				appended++
			}
			continue
		}
		if e.cache.ShouldDisplay(m) {
			e.view.Entries = append(e.view.Entries, Entry{Kind: EntryMessage, Text: m.Content, Message: m})
			appended++
		}
	}
	if appended > 0 {
		e.view.ScrollSeq++
		log.Debug().Str("room", msg.room).Int("appended", appended).Msg("merged snapshot")
	}
	return nil
}

func (e *Engine) syncIsStale(room string) bool {
	if room != e.resolveSyncRoom() {
		return true
	}
	return e.state.ActiveRoomID != "" && room != e.state.ActiveRoomID
}

// resetView clears the message view and the dedup cache and puts back the
// welcome notice.
func (e *Engine) resetView() {
	e.cache.Reset()
	e.view.Entries = e.view.Entries[:0]
	e.cache.ShouldDisplayNotice(WelcomeText)
	e.view.Entries = append(e.view.Entries, Entry{Kind: EntryNotice, Text: WelcomeText})
	e.view.ScrollSeq++
}
