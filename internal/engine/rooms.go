package engine

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"noisechat/internal/api"
	"noisechat/internal/location"
)

type origin int

const (
	originUser origin = iota
	originInitial
	originRejoin
	originNavigation
	originCreate
)

func (o origin) String() string {
	switch o {
	case originUser:
		return "user"
	case originInitial:
		return "initial"
	case originRejoin:
		return "rejoin"
	case originNavigation:
		return "navigation"
	case originCreate:
		return "create"
	default:
		return "unknown"
	}
}

type joinDoneMsg struct {
	room   string
	origin origin
	resp   api.JoinResponse
	err    error
}

type leaveDoneMsg struct {
	room string
	resp api.LeaveResponse
	err  error
}

type rejoinMsg struct{ room string }

type createDoneMsg struct {
	req  api.CreateRoomRequest
	resp api.Result
	err  error
}

type roomsDoneMsg struct {
	user bool
	resp api.RoomsResponse
	err  error
}

// Join requests a switch to roomID on behalf of the user.
func (e *Engine) Join(roomID string) tea.Cmd {
	return e.join(strings.TrimSpace(roomID), originUser)
}

func (e *Engine) join(roomID string, from origin) tea.Cmd {
	if err := ValidateRoomID(roomID); err != nil {
		return e.notifyErr(err, "")
	}
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Not connected to any server")
	}
	if from == originUser {
		ok, cmd := e.beginControl(ControlJoin)
		if !ok {
			return cmd
		}
	} else {
		e.view.busy[ControlJoin]++
	}
	e.logger("engine.rooms").Debug().Str("room", roomID).Stringer("origin", from).Msg("join requested")
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.JoinRoom(ctx, roomID)
		return joinDoneMsg{room: roomID, origin: from, resp: resp, err: err}
	}
}

func (e *Engine) handleJoin(msg joinDoneMsg) tea.Cmd {
	e.endControl(ControlJoin)
	log := e.logger("engine.rooms")
	if !e.state.Session.Connected {
		log.Debug().Str("room", msg.room).Msg("drop join result after disconnect")
		return nil
	}
	if msg.err != nil {
		log.Warn().Err(msg.err).Str("room", msg.room).Msg("join failed")
		cmds := []tea.Cmd{e.notifyErr(msg.err, "Failed to join room")}
		// The locator may already point at the room that refused us.
		if e.loc.Room() == msg.room && msg.room != e.state.ActiveRoomID {
			e.loc.Replace(location.Encode(e.state.ActiveRoomID))
		}
		if e.state.ActiveRoomID == "" && msg.origin == originInitial && msg.room != MainRoomID {
			cmds = append(cmds, e.join(MainRoomID, originInitial))
		}
		return tea.Batch(cmds...)
	}
	name := msg.resp.Room.Name
	cmds := []tea.Cmd{e.enterRoom(msg.room, name), e.roomsCmd(false)}
	text := msg.resp.Message
	if text == "" {
		text = fmt.Sprintf("Joined room %s", nullCoalesce(name, msg.room))
	}
	cmds = append(cmds, e.notify(LevelSuccess, text))
	e.event("joined %s (%s)", msg.room, msg.origin)
	return tea.Batch(cmds...)
}

// adopt moves to a room the server already reports as active, without a
// join request.
func (e *Engine) adopt(roomID string) tea.Cmd {
	name := ""
	if room, ok := e.state.roomByID(roomID); ok {
		name = room.Name
	}
	e.event("resumed %s", roomID)
	return tea.Batch(e.enterRoom(roomID, name), e.roomsCmd(false))
}

// enterRoom is the local half of a room switch: the view starts over,
// membership polling is retargeted and one sync runs immediately.
func (e *Engine) enterRoom(roomID, name string) tea.Cmd {
	e.state.ActiveRoomID = roomID
	e.view.ActiveRoomName = nullCoalesce(name, e.displayName(roomID))
	e.view.Members = nil
	e.resetView()
	if roomID == MainRoomID {
		e.loc.ClearRoom()
	} else {
		e.loc.SetRoom(roomID)
	}
	return tea.Batch(
		e.sched.Start(LoopMembers, roomID),
		e.membersCmd(roomID),
		e.syncCmd(roomID),
		e.persistCmd(),
	)
}

func (e *Engine) displayName(roomID string) string {
	if room, ok := e.state.roomByID(roomID); ok && room.Name != "" {
		return room.Name
	}
	if roomID == MainRoomID {
		return mainRoomName
	}
	return roomID
}

// Leave leaves roomID, or the active room when roomID is empty.
func (e *Engine) Leave(roomID string) tea.Cmd {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		roomID = e.state.ActiveRoomID
	}
	if err := ValidateRoomID(roomID); err != nil {
		return e.notifyErr(err, "")
	}
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Not connected to any server")
	}
	ok, cmd := e.beginControl(ControlLeave)
	if !ok {
		return cmd
	}
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.LeaveRoom(ctx, roomID)
		return leaveDoneMsg{room: roomID, resp: resp, err: err}
	}
}

func (e *Engine) handleLeave(msg leaveDoneMsg) tea.Cmd {
	e.endControl(ControlLeave)
	if !e.state.Session.Connected {
		return nil
	}
	if msg.err != nil {
		e.logger("engine.rooms").Warn().Err(msg.err).Str("room", msg.room).Msg("leave failed")
		return e.notifyErr(msg.err, "Failed to leave room")
	}
	e.state.ActiveRoomID = MainRoomID
	e.view.ActiveRoomName = e.displayName(MainRoomID)
	e.sched.Stop(LoopMembers)
	e.view.Members = nil
	e.resetView()
	e.loc.ClearRoom()

	target := nullCoalesce(msg.resp.NewActiveRoom, MainRoomID)
	text := nullCoalesce(msg.resp.Message, "Left room successfully")
	e.event("left %s, rejoining %s", msg.room, target)
	return tea.Batch(
		e.notify(LevelSuccess, text),
		e.roomsCmd(false),
		e.persistCmd(),
		e.opts.Schedule(e.opts.RejoinDelay, rejoinMsg{room: target}),
	)
}

func (e *Engine) handleRejoin(msg rejoinMsg) tea.Cmd {
	if !e.state.Session.Connected {
		return nil
	}
	return e.join(msg.room, originRejoin)
}

// Back and Forward walk the location history. When the room parameter
// changes while connected the engine joins the room it now names.
func (e *Engine) Back() tea.Cmd {
	if !e.loc.Back() {
		return nil
	}
	return e.navigated()
}

func (e *Engine) Forward() tea.Cmd {
	if !e.loc.Forward() {
		return nil
	}
	return e.navigated()
}

// Navigate applies an externally supplied locator, as a pasted link would.
func (e *Engine) Navigate(locator string) tea.Cmd {
	before := e.loc.Room()
	if room := location.Parse(locator); room != "" {
		e.loc.SetRoom(room)
	} else {
		e.loc.ClearRoom()
	}
	if e.loc.Room() == before {
		return nil
	}
	return e.navigated()
}

func (e *Engine) navigated() tea.Cmd {
	if !e.state.Session.Connected {
		return nil
	}
	return e.join(nullCoalesce(e.loc.Room(), MainRoomID), originNavigation)
}

func (e *Engine) CreateRoom(roomID, name, description string) tea.Cmd {
	req := api.CreateRoomRequest{
		RoomID:      strings.TrimSpace(roomID),
		RoomName:    strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
	}
	if err := ValidateCreateRoom(req.RoomID, req.RoomName); err != nil {
		return e.notifyErr(err, "")
	}
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Not connected to any server")
	}
	ok, cmd := e.beginControl(ControlCreate)
	if !ok {
		return cmd
	}
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.CreateRoom(ctx, req)
		return createDoneMsg{req: req, resp: resp, err: err}
	}
}

func (e *Engine) handleCreate(msg createDoneMsg) tea.Cmd {
	e.endControl(ControlCreate)
	if !e.state.Session.Connected {
		return nil
	}
	if msg.err != nil {
		return e.notifyErr(msg.err, "Failed to create room")
	}
	text := nullCoalesce(msg.resp.Message, fmt.Sprintf("Room %s created", msg.req.RoomName))
	return tea.Batch(
		e.notify(LevelSuccess, text),
		e.roomsCmd(false),
		e.join(msg.req.RoomID, originCreate),
	)
}

// RefreshRooms reloads the room list on user request.
func (e *Engine) RefreshRooms() tea.Cmd {
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Not connected to any server")
	}
	ok, cmd := e.beginControl(ControlRooms)
	if !ok {
		return cmd
	}
	return e.roomsCmd(true)
}

func (e *Engine) roomsCmd(user bool) tea.Cmd {
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.Rooms(ctx)
		return roomsDoneMsg{user: user, resp: resp, err: err}
	}
}

func (e *Engine) handleRooms(msg roomsDoneMsg) tea.Cmd {
	if msg.user {
		e.endControl(ControlRooms)
	}
	if msg.err != nil {
		e.logger("engine.rooms").Debug().Err(msg.err).Msg("room list refresh failed")
		if msg.user {
			return e.notifyErr(msg.err, "Failed to load rooms")
		}
		return nil
	}
	if !e.state.Session.Connected {
		return nil
	}
	rooms := make([]api.Room, len(msg.resp.Rooms))
	copy(rooms, msg.resp.Rooms)
	e.state.Rooms = rooms
	if room, ok := e.state.roomByID(e.state.ActiveRoomID); ok && room.Name != "" {
		e.view.ActiveRoomName = room.Name
	}
	return nil
}

// enterConnected runs on the disconnected to connected edge.
func (e *Engine) enterConnected(status api.Status) tea.Cmd {
	e.view.ChatVisible = true
	e.view.InputEnabled = true
	e.view.Members = nil
	e.state.ActiveRoomID = ""
	e.resetView()
	e.event("connected to %s as %s", status.Server, status.Username)
	return tea.Batch(
		e.sched.Start(LoopMessages, ""),
		e.roomsCmd(false),
		e.initialRoomCmd(status),
	)
}

// enterDisconnected runs on the connected to disconnected edge.
func (e *Engine) enterDisconnected(level Level, text string) tea.Cmd {
	e.statusFailures = 0
	e.disconnecting = false
	e.state.ActiveRoomID = ""
	e.state.Rooms = nil
	e.view.ChatVisible = false
	e.view.InputEnabled = false
	e.view.Members = nil
	e.view.ActiveRoomName = ""
	e.sched.Stop(LoopMessages)
	e.sched.Stop(LoopMembers)
	e.abortReport("Disconnected before the run finished")
	return e.notify(level, text)
}

func (e *Engine) persistCmd() tea.Cmd {
	store, server := e.opts.Store, e.state.Session.Server
	if store == nil || server == "" {
		return nil
	}
	key, value := location.Key(server), e.loc.String()
	return func() tea.Msg {
		return persistDoneMsg{err: store.Save(key, value)}
	}
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
