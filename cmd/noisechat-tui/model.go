package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"noisechat/internal/api"
	"noisechat/internal/config"
	"noisechat/internal/engine"
)

const (
	timelineMaxLines = 12
	timelineMaxChars = 1200
	logPaneLines     = 50
)

type tabID int

const (
	tabChat tabID = iota
	tabRooms
	tabFiles
	tabDiagnostics
	tabHelp
	tabCount
)

type model struct {
	cfg    *config.Config
	eng    *engine.Engine
	client *api.Client

	statusLine    string
	statusLevel   engine.Level
	lastNoticeID  int
	logs          []string
	activeTab     tabID
	roomIndex     int
	quitConfirm   bool
	lastScrollSeq int

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	sidebar  viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

func newModel(cfg *config.Config, eng *engine.Engine, client *api.Client) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Type a message. /help lists commands."
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4
	sidebar := viewport.New(0, 0)
	sidebar.MouseWheelEnabled = true
	sidebar.MouseWheelDelta = 4

	return model{
		cfg:        cfg,
		eng:        eng,
		client:     client,
		statusLine: "starting...",
		logs:       []string{},
		activeTab:  tabChat,
		input:      input,
		timeline:   timeline,
		sidebar:    sidebar,
		spinner:    sp,
		theme:      newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, textinput.Blink, m.eng.Init()}
	if m.cfg.AutoConnect && m.cfg.Username != "" {
		cmds = append(cmds, m.eng.Connect(m.cfg.Username, m.cfg.Server, m.cfg.Port))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if cmd := m.eng.Update(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.quitConfirm {
			break
		}
		var cmd tea.Cmd
		if m.activeTab == tabChat {
			m.timeline, cmd = m.timeline.Update(msg)
		} else {
			m.sidebar, cmd = m.sidebar.Update(msg)
		}
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		cmds = append(cmds, m.handleKey(msg))
	}
	m.absorbEngine()
	m.renderPanes()
	return m, tea.Batch(cmds...)
}

// absorbEngine pulls side outputs out of the engine after every message:
// event lines for the log pane and a draft handed back by a failed send.
func (m *model) absorbEngine() {
	for _, line := range m.eng.DrainEvents() {
		m.appendLog(line)
	}
	if draft := m.eng.TakeDraft(); draft != "" && strings.TrimSpace(m.input.Value()) == "" {
		m.input.SetValue(draft)
		m.input.CursorEnd()
	}
	// Only a newly raised notification replaces the status line, so local
	// usage hints survive until the engine has something to say.
	if notices := m.eng.View().Notifications; len(notices) > 0 {
		latest := notices[len(notices)-1]
		if latest.ID > m.lastNoticeID {
			m.lastNoticeID = latest.ID
			m.statusLine = latest.Text
			m.statusLevel = latest.Level
		}
	}
	if rooms := m.eng.State().Rooms; m.roomIndex >= len(rooms) {
		m.roomIndex = maxInt(0, len(rooms)-1)
	}
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	if key == "ctrl+c" {
		return tea.Quit
	}
	if m.quitConfirm {
		switch key {
		case "y", "Y", "enter":
			return tea.Quit
		case "n", "N", "esc":
			m.quitConfirm = false
			m.setStatus("quit canceled")
		}
		return nil
	}

	switch key {
	case "esc":
		m.beginQuitConfirm()
		return nil
	case "tab":
		m.switchTab((m.activeTab + 1) % tabCount)
		return nil
	case "shift+tab":
		m.switchTab((m.activeTab + tabCount - 1) % tabCount)
		return nil
	case "alt+left":
		return m.eng.Back()
	case "alt+right":
		return m.eng.Forward()
	case "ctrl+r":
		return m.eng.RefreshRooms()
	}

	switch m.activeTab {
	case tabChat:
		switch key {
		case "enter":
			raw := strings.TrimSpace(m.input.Value())
			if raw == "" {
				return nil
			}
			m.input.SetValue("")
			if strings.HasPrefix(raw, "/") {
				return m.handleSlash(raw)
			}
			return m.eng.Send(raw)
		case "pgup", "ctrl+b":
			m.timeline.LineUp(8)
			return nil
		case "pgdown", "ctrl+f":
			m.timeline.LineDown(8)
			return nil
		case "up":
			if strings.TrimSpace(m.input.Value()) == "" {
				m.timeline.LineUp(4)
				return nil
			}
		case "down":
			if strings.TrimSpace(m.input.Value()) == "" {
				m.timeline.LineDown(4)
				return nil
			}
		case "home":
			m.timeline.GotoTop()
			return nil
		case "end":
			m.timeline.GotoBottom()
			return nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	case tabRooms:
		rooms := m.eng.State().Rooms
		switch key {
		case "up", "k":
			m.roomIndex = maxInt(0, m.roomIndex-1)
		case "down", "j":
			m.roomIndex = minInt(maxInt(0, len(rooms)-1), m.roomIndex+1)
		case "enter":
			if m.roomIndex < len(rooms) {
				return m.eng.Join(rooms[m.roomIndex].ID)
			}
		case "l":
			if m.roomIndex < len(rooms) {
				return m.eng.Leave(rooms[m.roomIndex].ID)
			}
		}
	case tabFiles:
		switch key {
		case "r":
			return m.eng.ReceivedFiles(m.eng.View().ReceivedFilesRoom)
		case "up", "k", "pgup":
			m.sidebar.LineUp(4)
		case "down", "j", "pgdown":
			m.sidebar.LineDown(4)
		}
	case tabDiagnostics:
		switch key {
		case "s":
			return m.eng.RunSecurityTest("all")
		case "p":
			return m.eng.RunPerformanceTest(engine.DefaultPerformanceTest())
		case "d":
			return m.eng.LoadDebug()
		case "m":
			if id := latestMessageID(m.eng.View()); id != "" {
				return m.eng.MessageDetails(id)
			}
			m.setStatus("no message with an id in this room yet")
		case "up", "k", "pgup":
			m.sidebar.LineUp(4)
		case "down", "j", "pgdown":
			m.sidebar.LineDown(4)
		}
	case tabHelp:
		switch key {
		case "up", "k", "pgup":
			m.sidebar.LineUp(4)
		case "down", "j", "pgdown":
			m.sidebar.LineDown(4)
		}
	}
	return nil
}

func (m *model) switchTab(tab tabID) {
	m.activeTab = tab
	if tab == tabChat {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	m.sidebar.GotoTop()
}

func (m *model) handleSlash(raw string) tea.Cmd {
	parts := strings.Fields(strings.TrimSpace(raw))
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	tail := parts[1:]
	switch cmd {
	case "/help":
		m.switchTab(tabHelp)
		return nil
	case "/quit", "/exit":
		m.beginQuitConfirm()
		return nil
	case "/connect":
		username, server, port, usage := parseConnectArgs(tail, m.cfg.Username, m.cfg.Server, m.cfg.Port)
		if usage != "" {
			m.setStatus(usage)
			return nil
		}
		return m.eng.Connect(username, server, port)
	case "/disconnect":
		return m.eng.Disconnect()
	case "/join":
		if len(tail) != 1 {
			m.setStatus("usage: /join <room_id>")
			return nil
		}
		return m.eng.Join(tail[0])
	case "/leave":
		room := ""
		if len(tail) > 0 {
			room = tail[0]
		}
		return m.eng.Leave(room)
	case "/create":
		if len(tail) < 2 {
			m.setStatus("usage: /create <room_id> <name> [description]")
			return nil
		}
		return m.eng.CreateRoom(tail[0], tail[1], strings.Join(tail[2:], " "))
	case "/rooms":
		m.switchTab(tabRooms)
		return m.eng.RefreshRooms()
	case "/files":
		room := "all"
		if len(tail) > 0 {
			room = tail[0]
		}
		m.switchTab(tabFiles)
		return m.eng.ReceivedFiles(room)
	case "/upload":
		path := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), parts[0]))
		if path == "" {
			m.setStatus("usage: /upload <path>")
			return nil
		}
		return m.eng.Upload(path)
	case "/back":
		return m.eng.Back()
	case "/forward":
		return m.eng.Forward()
	case "/diag":
		return m.handleDiag(tail)
	case "/debug":
		m.switchTab(tabDiagnostics)
		return m.eng.LoadDebug()
	case "/details":
		if len(tail) != 1 {
			m.setStatus("usage: /details <message_id>")
			return nil
		}
		m.switchTab(tabDiagnostics)
		return m.eng.MessageDetails(tail[0])
	case "/open":
		if len(tail) != 1 {
			m.setStatus("usage: /open <?room=id>")
			return nil
		}
		return m.eng.Navigate(tail[0])
	default:
		m.setStatus("unknown command: " + cmd)
		return nil
	}
}

func (m *model) handleDiag(tail []string) tea.Cmd {
	const usage = "usage: /diag security [test|all] | /diag perf [messages] [size] [protocol...]"
	if len(tail) == 0 {
		m.setStatus(usage)
		return nil
	}
	switch strings.ToLower(tail[0]) {
	case "security", "sec":
		if len(tail) > 2 {
			m.setStatus(usage)
			return nil
		}
		test := "all"
		if len(tail) == 2 {
			test = strings.ToLower(tail[1])
		}
		m.switchTab(tabDiagnostics)
		return m.eng.RunSecurityTest(test)
	case "perf", "performance":
		req, problem := parsePerformanceArgs(tail[1:])
		if problem != "" {
			m.setStatus(problem)
			return nil
		}
		m.switchTab(tabDiagnostics)
		return m.eng.RunPerformanceTest(req)
	default:
		m.setStatus(usage)
		return nil
	}
}

// parsePerformanceArgs reads [messages] [size] [protocol...] over the
// defaults the browser UI submits.
func parsePerformanceArgs(tail []string) (api.PerformanceTestRequest, string) {
	req := engine.DefaultPerformanceTest()
	if len(tail) > 0 {
		n, err := strconv.Atoi(tail[0])
		if err != nil {
			return req, "message count must be a number"
		}
		req.NumMessages = n
	}
	if len(tail) > 1 {
		n, err := strconv.Atoi(tail[1])
		if err != nil {
			return req, "message size must be a number"
		}
		req.MessageSize = n
	}
	if len(tail) > 2 {
		req.Protocols = nil
		for _, p := range tail[2:] {
			req.Protocols = append(req.Protocols, strings.ToLower(p))
		}
	}
	return req, ""
}

func latestMessageID(view engine.View) string {
	for i := len(view.Entries) - 1; i >= 0; i-- {
		if id := view.Entries[i].Message.MessageID; id != "" {
			return id
		}
	}
	return ""
}

// parseConnectArgs fills server and port from the configured defaults
// when they are omitted.
func parseConnectArgs(tail []string, username, server string, port int) (string, string, int, string) {
	const usage = "usage: /connect <username> [server] [port]"
	if len(tail) > 3 {
		return "", "", 0, usage
	}
	if len(tail) > 0 {
		username = tail[0]
	}
	if len(tail) > 1 {
		server = tail[1]
	}
	if len(tail) > 2 {
		parsed, err := strconv.Atoi(tail[2])
		if err != nil {
			return "", "", 0, "port must be a number"
		}
		port = parsed
	}
	if strings.TrimSpace(username) == "" {
		return "", "", 0, usage
	}
	return username, server, port, ""
}

func (m *model) setStatus(text string) {
	m.statusLine = text
	m.statusLevel = engine.LevelInfo
}

func (m *model) beginQuitConfirm() {
	m.quitConfirm = true
	m.setStatus("quit noisechat?")
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), compactSingleLine(trimmed, 220)))
	if len(m.logs) > logPaneLines {
		m.logs = m.logs[len(m.logs)-logPaneLines:]
	}
}
