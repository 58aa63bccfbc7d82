package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"noisechat/internal/api"
)

type connectDoneMsg struct {
	resp api.Result
	err  error
}

type disconnectDoneMsg struct {
	resp api.Result
	err  error
}

type sendDoneMsg struct {
	text string
	room string
	err  error
}

type uploadDoneMsg struct {
	path string
	room string
	resp api.UploadResponse
	err  error
}

type filesDoneMsg struct {
	room string
	resp api.ReceivedFilesResponse
	err  error
}

// Connect opens a session. The connected edge itself is detected by the
// status poll that follows a successful response.
func (e *Engine) Connect(username, server string, port int) tea.Cmd {
	req := api.ConnectRequest{Username: strings.TrimSpace(username), Server: strings.TrimSpace(server), Port: port}
	if err := ValidateConnect(req.Username, req.Server, req.Port); err != nil {
		return e.notifyErr(err, "")
	}
	if e.state.Session.Connected {
		return e.notify(LevelInfo, "Already connected to "+e.state.Session.Server)
	}
	ok, cmd := e.beginControl(ControlConnect)
	if !ok {
		return cmd
	}
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.Connect(ctx, req)
		return connectDoneMsg{resp: resp, err: err}
	}
}

func (e *Engine) handleConnect(msg connectDoneMsg) tea.Cmd {
	e.endControl(ControlConnect)
	if msg.err != nil {
		e.logger("engine.actions").Warn().Err(msg.err).Msg("connect failed")
		return e.notifyErr(msg.err, "Failed to connect to server")
	}
	return tea.Batch(
		e.notify(LevelSuccess, nullCoalesce(msg.resp.Message, "Connected")),
		e.statusCmd(),
	)
}

func (e *Engine) Disconnect() tea.Cmd {
	if !e.state.Session.Connected {
		return e.notify(LevelInfo, "Not connected to any server")
	}
	ok, cmd := e.beginControl(ControlDisconnect)
	if !ok {
		return cmd
	}
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.Disconnect(ctx)
		return disconnectDoneMsg{resp: resp, err: err}
	}
}

func (e *Engine) handleDisconnect(msg disconnectDoneMsg) tea.Cmd {
	e.endControl(ControlDisconnect)
	if msg.err != nil {
		return e.notifyErr(msg.err, "Failed to disconnect")
	}
	e.disconnecting = true
	return e.statusCmd()
}

// Send posts text to the room the next sync would poll. Blank input is
// ignored; on failure the text comes back through TakeDraft.
func (e *Engine) Send(text string) tea.Cmd {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !e.state.Session.Connected {
		e.draft = text
		return e.notify(LevelError, "Not connected to any server")
	}
	room := e.resolveSyncRoom()
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		_, err := backend.Send(ctx, text, room)
		return sendDoneMsg{text: text, room: room, err: err}
	}
}

func (e *Engine) handleSend(msg sendDoneMsg) tea.Cmd {
	if msg.err != nil {
		e.logger("engine.actions").Warn().Err(msg.err).Str("room", msg.room).Msg("send failed")
		e.draft = msg.text
		return e.notifyErr(msg.err, "Failed to send message")
	}
	if !e.state.Session.Connected {
		return nil
	}
	return e.syncCmd(e.resolveSyncRoom())
}

// Upload validates path locally before anything is sent.
func (e *Engine) Upload(path string) tea.Cmd {
	path = strings.TrimSpace(path)
	if err := statUpload(path); err != nil {
		return e.notifyErr(err, "")
	}
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Not connected to any server")
	}
	ok, cmd := e.beginControl(ControlUpload)
	if !ok {
		return cmd
	}
	room := e.resolveSyncRoom()
	backend, ctx := e.backend, e.ctx
	return tea.Batch(
		e.notify(LevelInfo, fmt.Sprintf("Uploading %s...", filepath.Base(path))),
		func() tea.Msg {
			resp, err := backend.Upload(ctx, path, room)
			return uploadDoneMsg{path: path, room: room, resp: resp, err: err}
		},
	)
}

func (e *Engine) handleUpload(msg uploadDoneMsg) tea.Cmd {
	e.endControl(ControlUpload)
	if msg.err != nil {
		e.logger("engine.actions").Warn().Err(msg.err).Str("path", msg.path).Msg("upload failed")
		return e.notifyErr(msg.err, "Network error, please try again")
	}
	text := nullCoalesce(msg.resp.Message, fmt.Sprintf("File %s uploaded", filepath.Base(msg.path)))
	cmds := []tea.Cmd{e.notify(LevelSuccess, text)}
	if e.state.Session.Connected {
		cmds = append(cmds, e.syncCmd(e.resolveSyncRoom()))
	}
	return tea.Batch(cmds...)
}

// ReceivedFiles lists files sent to this user, for one room or "all".
func (e *Engine) ReceivedFiles(room string) tea.Cmd {
	room = nullCoalesce(strings.TrimSpace(room), "all")
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Not connected to any server")
	}
	ok, cmd := e.beginControl(ControlFiles)
	if !ok {
		return cmd
	}
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.ReceivedFiles(ctx, room)
		return filesDoneMsg{room: room, resp: resp, err: err}
	}
}

func (e *Engine) handleFiles(msg filesDoneMsg) tea.Cmd {
	e.endControl(ControlFiles)
	if msg.err != nil {
		return e.notifyErr(msg.err, "Failed to load received files")
	}
	files := make([]api.ReceivedFile, len(msg.resp.Files))
	copy(files, msg.resp.Files)
	e.view.ReceivedFiles = files
	e.view.ReceivedFilesRoom = msg.room
	return nil
}
