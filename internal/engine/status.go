package engine

import (
	tea "github.com/charmbracelet/bubbletea"

	"noisechat/internal/api"
	"noisechat/internal/location"
)

type statusDoneMsg struct {
	status api.Status
	err    error
}

type locationLoadedMsg struct {
	server     string
	locator    string
	activeRoom string
	err        error
}

func (e *Engine) statusCmd() tea.Cmd {
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		status, err := backend.Status(ctx)
		return statusDoneMsg{status: status, err: err}
	}
}

// handleStatus applies a status snapshot. Only changes of the connected
// flag cause side effects; a repeated observation of the same value is a
// no-op apart from refreshing the session fields.
func (e *Engine) handleStatus(msg statusDoneMsg) tea.Cmd {
	log := e.logger("engine.status")
	if msg.err != nil {
		if !e.state.Session.Connected {
			log.Debug().Err(msg.err).Msg("status poll failed while disconnected")
			return nil
		}
		e.statusFailures++
		log.Warn().Err(msg.err).Int("failures", e.statusFailures).Msg("status poll failed")
		if e.statusFailures < e.opts.StatusFailureThreshold {
			return nil
		}
		e.state.Session = Session{}
		return e.enterDisconnected(LevelError, "Connection to server lost")
	}
	e.statusFailures = 0

	status := msg.status
	wasConnected := e.state.Session.Connected
	if status.Connected {
		// A disconnect the server has not honored is over; a later loss is not ours.
		e.disconnecting = false
		e.state.Session = Session{
			Connected:   true,
			Username:    status.Username,
			Server:      status.Server,
			ConnectedAt: status.ConnectedAt,
		}
	} else {
		e.state.Session = Session{}
	}

	switch {
	case status.Connected && !wasConnected:
		log.Info().Str("username", status.Username).Str("server", status.Server).Msg("connected")
		return e.enterConnected(status)
	case !status.Connected && wasConnected:
		if e.disconnecting {
			log.Info().Msg("disconnected")
			return e.enterDisconnected(LevelInfo, "Disconnected from server")
		}
		log.Warn().Msg("server reports session gone")
		return e.enterDisconnected(LevelError, "Connection to server lost")
	}
	return nil
}

// initialRoomCmd picks the first room after the connected edge. A room
// already in the location wins; a persisted locator for this server is
// consulted next, then the server's active room, then main.
func (e *Engine) initialRoomCmd(status api.Status) tea.Cmd {
	if e.loc.Room() == "" && e.opts.Store != nil && status.Server != "" {
		store, key := e.opts.Store, location.Key(status.Server)
		server, active := status.Server, status.ActiveRoom
		return func() tea.Msg {
			raw, err := store.Load(key)
			return locationLoadedMsg{server: server, locator: raw, activeRoom: active, err: err}
		}
	}
	return e.resolveInitialRoom(status.ActiveRoom)
}

func (e *Engine) handleLocationLoaded(msg locationLoadedMsg) tea.Cmd {
	if !e.state.Session.Connected || e.state.Session.Server != msg.server {
		return nil
	}
	if msg.err != nil {
		e.logger("engine.status").Warn().Err(msg.err).Msg("load persisted location failed")
	} else if e.loc.Room() == "" && location.Parse(msg.locator) != "" {
		e.loc.Replace(msg.locator)
		e.event("restored room %s", e.loc.Room())
	}
	return e.resolveInitialRoom(msg.activeRoom)
}

func (e *Engine) resolveInitialRoom(serverActive string) tea.Cmd {
	if room := e.loc.Room(); room != "" {
		return e.join(room, originInitial)
	}
	if serverActive != "" {
		return e.adopt(serverActive)
	}
	return e.join(MainRoomID, originInitial)
}
