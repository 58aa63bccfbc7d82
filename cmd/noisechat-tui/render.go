package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"noisechat/internal/api"
	"noisechat/internal/engine"
	"noisechat/internal/sanitize"
)

var busyControls = []engine.Control{
	engine.ControlConnect,
	engine.ControlDisconnect,
	engine.ControlJoin,
	engine.ControlLeave,
	engine.ControlCreate,
	engine.ControlUpload,
	engine.ControlRooms,
	engine.ControlFiles,
	engine.ControlDiagnostic,
	engine.ControlDebug,
}

type uiTheme struct {
	root          lipgloss.Style
	header        lipgloss.Style
	tabActive     lipgloss.Style
	tabInactive   lipgloss.Style
	panel         lipgloss.Style
	panelTitle    lipgloss.Style
	footer        lipgloss.Style
	status        lipgloss.Style
	successStatus lipgloss.Style
	errorStatus   lipgloss.Style
	inputPanel    lipgloss.Style
	helpText      lipgloss.Style
	incoming      lipgloss.Style
	outgoing      lipgloss.Style
	system        lipgloss.Style
	fileLine      lipgloss.Style
	selected      lipgloss.Style
	accent        lipgloss.Style
	modalFrame    lipgloss.Style
}

func newTheme() uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	gold := lipgloss.Color("#ffd166")
	bg := lipgloss.Color("#120924")
	panelBg := lipgloss.Color("#1b0f35")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		root: lipgloss.NewStyle().
			Background(bg).
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		tabActive: lipgloss.NewStyle().
			Background(pink).
			Foreground(lipgloss.Color("#22062f")).
			Bold(true).
			Padding(0, 1),
		tabInactive: lipgloss.NewStyle().
			Background(lipgloss.Color("#2a184a")).
			Foreground(muted).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().
			Foreground(mint).
			Bold(true),
		footer: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(muted).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(pink).
			Padding(0, 1),
		status:        lipgloss.NewStyle().Foreground(blue).Bold(true),
		successStatus: lipgloss.NewStyle().Foreground(mint).Bold(true),
		errorStatus:   lipgloss.NewStyle().Foreground(pink).Bold(true),
		inputPanel: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		helpText: lipgloss.NewStyle().Foreground(muted),
		incoming: lipgloss.NewStyle().Foreground(blue).Bold(true),
		outgoing: lipgloss.NewStyle().Foreground(mint).Bold(true),
		system:   lipgloss.NewStyle().Foreground(muted).Italic(true),
		fileLine: lipgloss.NewStyle().Foreground(gold),
		selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22062f")).
			Background(pink).
			Bold(true),
		accent: lipgloss.NewStyle().Foreground(mint).Bold(true),
		modalFrame: lipgloss.NewStyle().
			Background(panelBg).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(blue).
			Padding(1, 2),
	}
}

func (m model) View() string {
	if m.quitConfirm {
		return m.theme.root.Render(m.renderQuitModal())
	}
	out := lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.renderContent(),
		m.renderInput(),
		m.renderFooter(),
	)
	return m.theme.root.Render(out)
}

func (m *model) resize() {
	contentWidth := maxInt(40, m.width-4)
	m.input.Width = maxInt(20, contentWidth-6)
}

func (m *model) layout() (contentWidth, contentHeight, leftWidth, rightWidth int) {
	contentHeight = maxInt(8, m.height-11)
	contentWidth = maxInt(40, m.width-4)
	leftWidth = int(float64(contentWidth) * 0.68)
	rightWidth = contentWidth - leftWidth - 1
	if rightWidth < 28 {
		rightWidth = 28
		leftWidth = contentWidth - rightWidth - 1
	}
	return contentWidth, contentHeight, leftWidth, rightWidth
}

func (m *model) renderPanes() {
	prevTimelineYOffset := m.timeline.YOffset
	prevTimelineAtBottom := m.timeline.AtBottom()
	prevSidebarYOffset := m.sidebar.YOffset

	contentWidth, contentHeight, leftWidth, rightWidth := m.layout()
	m.timeline.Width = maxInt(20, leftWidth-4)
	m.timeline.Height = maxInt(5, contentHeight-3)
	if m.activeTab == tabChat {
		m.sidebar.Width = maxInt(20, rightWidth-4)
	} else {
		m.sidebar.Width = maxInt(20, contentWidth-4)
	}
	m.sidebar.Height = maxInt(5, contentHeight-3)

	view := m.eng.View()
	if view.InputEnabled {
		m.input.Placeholder = "Type a message. /help lists commands."
	} else {
		m.input.Placeholder = "Not connected. /connect <username> [server] [port]"
	}

	m.timeline.SetContent(m.renderTimeline())
	if view.ScrollSeq != m.lastScrollSeq || prevTimelineAtBottom {
		m.timeline.GotoBottom()
		m.lastScrollSeq = view.ScrollSeq
	} else {
		m.timeline.SetYOffset(prevTimelineYOffset)
	}

	switch m.activeTab {
	case tabRooms:
		m.sidebar.SetContent(m.renderRooms())
	case tabFiles:
		m.sidebar.SetContent(m.renderFiles())
	case tabDiagnostics:
		m.sidebar.SetContent(m.renderDiagnostics())
	case tabHelp:
		m.sidebar.SetContent(m.renderHelp())
	default:
		m.sidebar.SetContent(m.renderSidebar())
	}
	m.sidebar.SetYOffset(prevSidebarYOffset)
}

func (m *model) renderHeader() string {
	tabs := []struct {
		id    tabID
		label string
	}{
		{tabChat, "Chat"},
		{tabRooms, "Rooms"},
		{tabFiles, "Files"},
		{tabDiagnostics, "Diagnostics"},
		{tabHelp, "Help"},
	}
	segments := make([]string, 0, len(tabs)+1)
	for _, tab := range tabs {
		style := m.theme.tabInactive
		if tab.id == m.activeTab {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(tab.label))
	}
	session := m.eng.State().Session
	meta := " offline"
	if session.Connected {
		meta = fmt.Sprintf(" %s@%s · %s",
			sanitize.Name(session.Username, "?"),
			sanitize.Name(session.Server, "?"),
			sanitize.Name(m.eng.View().ActiveRoomName, engine.MainRoomID),
		)
	}
	segments = append(segments, m.theme.helpText.Render(meta))
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func (m *model) renderContent() string {
	contentWidth, contentHeight, leftWidth, rightWidth := m.layout()
	view := m.eng.View()

	switch m.activeTab {
	case tabChat:
		title := "Chat · " + sanitize.Name(view.ActiveRoomName, "Main Room")
		body := m.timeline.View()
		if !view.ChatVisible {
			title = "Chat"
			body = m.theme.helpText.Render("Not connected.\n\nUse /connect <username> [server] [port] to start a secure session.")
		}
		left := m.theme.panel.Width(leftWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render(title) + "\n" + body,
		)
		right := m.theme.panel.Width(rightWidth).Height(contentHeight).Render(
			m.theme.panelTitle.Render("Session") + "\n" + m.sidebar.View(),
		)
		return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	case tabRooms:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("Rooms · "+view.Label(engine.ControlRooms)) + "\n" + m.sidebar.View())
	case tabFiles:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("Received Files · "+view.Label(engine.ControlFiles)) + "\n" + m.sidebar.View())
	case tabDiagnostics:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("Diagnostics · "+view.Label(engine.ControlDiagnostic)) + "\n" + m.sidebar.View())
	case tabHelp:
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("noisechat Help") + "\n" + m.sidebar.View())
	default:
		return ""
	}
}

func (m *model) renderTimeline() string {
	view := m.eng.View()
	if len(view.Entries) == 0 {
		return m.theme.helpText.Render("No messages yet.")
	}
	width := maxInt(24, m.timeline.Width-2)
	var b strings.Builder
	for _, entry := range view.Entries {
		if entry.Kind == engine.EntryNotice {
			b.WriteString(m.theme.system.Render(wrapText("· "+sanitize.Text(entry.Text), width)))
			b.WriteString("\n\n")
			continue
		}
		msg := entry.Message
		if msg.Type.IsSystem() {
			line := fmt.Sprintf("%s %s", shortTime(msg.Timestamp), sanitize.Text(msg.Content))
			b.WriteString(m.theme.system.Render(wrapText(line, width)))
			b.WriteString("\n\n")
			continue
		}
		style := ternary(msg.Type.IsOutgoing(), m.theme.outgoing, m.theme.incoming)
		who := ternary(msg.Type.IsOutgoing(), "you", sanitize.Name(msg.Sender, "unknown"))
		header := fmt.Sprintf("%s %s", shortTime(msg.Timestamp), who)
		if msg.Encryption != nil && msg.Encryption.Algorithm != "" {
			header += " · " + sanitize.Name(msg.Encryption.Algorithm, "")
		}
		b.WriteString(style.Render(header))
		b.WriteString("\n")
		if msg.Type.IsFile() && msg.FileInfo != nil {
			b.WriteString(m.theme.fileLine.Render(wrapText(m.fileLine(*msg.FileInfo), width)))
		} else {
			preview := compactTimelineMessage(sanitize.Text(msg.Content), timelineMaxLines, timelineMaxChars)
			b.WriteString(wrapText(preview, width))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func (m *model) fileLine(info api.FileInfo) string {
	line := fmt.Sprintf("[file] %s (%s)", sanitize.Name(info.Filename, "unnamed"), humanSize(info.Size))
	if resolved := info.ResolvedURL(); resolved != "" && m.client != nil {
		line += " " + m.client.FileURL(resolved)
	}
	return line
}

func (m *model) renderSidebar() string {
	state := m.eng.State()
	view := m.eng.View()
	var b strings.Builder

	if state.Session.Connected {
		b.WriteString(fmt.Sprintf("%s @ %s\n",
			m.theme.accent.Render(sanitize.Name(state.Session.Username, "?")),
			sanitize.Name(state.Session.Server, "?")))
		if state.Session.ConnectedAt != "" {
			b.WriteString(m.theme.helpText.Render("since "+shortTime(state.Session.ConnectedAt)) + "\n")
		}
	} else {
		b.WriteString(m.theme.errorStatus.Render("disconnected") + "\n")
	}
	b.WriteString(m.theme.helpText.Render("location: "+nullCoalesce(m.eng.Location().String(), "/")) + "\n")

	if state.Session.Connected {
		b.WriteString("\n" + m.theme.panelTitle.Render(fmt.Sprintf("Members (%d)", len(view.Members))) + "\n")
		for _, member := range view.Members {
			name := sanitize.Name(member.Username, "anon")
			if member.IsCurrentUser {
				b.WriteString(m.theme.outgoing.Render("* "+name+" (you)") + "\n")
				continue
			}
			b.WriteString("  " + name + "\n")
		}
		if len(view.Members) == 0 {
			b.WriteString(m.theme.helpText.Render("  (loading)") + "\n")
		}

		b.WriteString("\n" + m.theme.panelTitle.Render("Rooms") + "\n")
		for _, room := range state.Rooms {
			marker := ternary(room.ID == state.ActiveRoomID, "> ", "  ")
			b.WriteString(fmt.Sprintf("%s%s (%d)\n", marker, sanitize.Name(room.Name, room.ID), room.MemberCount))
		}
	}

	pending := make([]string, 0, len(busyControls))
	for _, control := range busyControls {
		if view.Busy(control) {
			pending = append(pending, view.Label(control))
		}
	}
	if len(pending) > 0 {
		b.WriteString("\n" + m.theme.status.Render(strings.Join(pending, " ")) + "\n")
	}

	if len(m.logs) > 0 {
		b.WriteString("\n" + m.theme.panelTitle.Render("Activity") + "\n")
		start := maxInt(0, len(m.logs)-8)
		for _, line := range m.logs[start:] {
			b.WriteString(m.theme.helpText.Render(truncate(line, maxInt(20, m.sidebar.Width))) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderRooms() string {
	state := m.eng.State()
	if !state.Session.Connected {
		return m.theme.helpText.Render("Connect to list rooms.")
	}
	if len(state.Rooms) == 0 {
		return m.theme.helpText.Render("No rooms loaded. Press Ctrl+R to refresh.")
	}
	var b strings.Builder
	b.WriteString(m.theme.helpText.Render("Up/Down select · Enter join · l leave · Ctrl+R refresh") + "\n\n")
	for idx, room := range state.Rooms {
		label := fmt.Sprintf("%s [%s] · %d member(s)", sanitize.Name(room.Name, room.ID), sanitize.Name(room.ID, "?"), room.MemberCount)
		if room.ID == state.ActiveRoomID {
			label += " · active"
		}
		if idx == m.roomIndex {
			b.WriteString(m.theme.selected.Render(label))
		} else {
			b.WriteString(label)
		}
		b.WriteString("\n")
		if desc := sanitize.Text(room.Description); strings.TrimSpace(desc) != "" {
			b.WriteString(m.theme.helpText.Render("   "+compactSingleLine(desc, 120)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderFiles() string {
	view := m.eng.View()
	if view.ReceivedFilesRoom == "" {
		return m.theme.helpText.Render("Use /files [room|all] to list received files.")
	}
	var b strings.Builder
	b.WriteString(m.theme.helpText.Render(fmt.Sprintf("Scope: %s · r reload", sanitize.Name(view.ReceivedFilesRoom, "all"))) + "\n\n")
	if len(view.ReceivedFiles) == 0 {
		b.WriteString(m.theme.helpText.Render("No files received."))
		return b.String()
	}
	for _, file := range view.ReceivedFiles {
		b.WriteString(m.theme.incoming.Render(fmt.Sprintf("%s %s", shortTime(file.Timestamp), sanitize.Name(file.Sender, "unknown"))))
		b.WriteString(m.theme.helpText.Render(" in " + sanitize.Name(file.RoomName, file.RoomID)))
		b.WriteString("\n")
		b.WriteString(m.theme.fileLine.Render(wrapText(m.fileLine(file.FileInfo), maxInt(24, m.sidebar.Width-2))))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderDiagnostics() string {
	view := m.eng.View()
	width := maxInt(24, m.sidebar.Width-2)
	var b strings.Builder
	b.WriteString(m.theme.helpText.Render("s security · p performance · d debug · m latest message details") + "\n\n")

	report := view.Report
	switch {
	case report.Run == 0:
		b.WriteString(m.theme.helpText.Render("No diagnostics run yet."))
	case report.Running:
		b.WriteString(fmt.Sprintf("%s %s tests running · %d%% · poll %d\n", m.spinner.View(), report.Kind, report.Progress, report.Polls))
	default:
		b.WriteString(m.theme.accent.Render(fmt.Sprintf("%s run #%d · %s", report.Kind, report.Run, shortClock(report.FinishedAt))) + "\n")
		if report.Err != "" {
			b.WriteString(m.theme.errorStatus.Render(report.Err) + "\n")
		}
	}
	if report.Kind == engine.DiagSecurity && len(report.Security) > 0 {
		passed, total := report.Passed()
		b.WriteString(fmt.Sprintf("\n%d/%d checks passed\n", passed, total))
		for _, name := range report.SecurityNames() {
			outcome := report.Security[name]
			style := ternary(outcome.Passed(), m.theme.successStatus, m.theme.errorStatus)
			b.WriteString(style.Render(fmt.Sprintf("%-15s %s", name, sanitize.Name(outcome.Status, "?"))))
			b.WriteString(" " + m.theme.helpText.Render(wrapText(sanitize.Text(outcome.Message), width)) + "\n")
		}
	}
	if report.Kind == engine.DiagPerformance && len(report.Performance) > 0 {
		b.WriteString("\n" + m.theme.panelTitle.Render(fmt.Sprintf("%-12s %10s %10s %10s %7s %8s", "protocol", "handshake", "latency", "msg/s", "cpu%", "mem MB")) + "\n")
		for _, name := range report.ProtocolNames() {
			row := report.Performance[name]
			b.WriteString(fmt.Sprintf("%-12s %9.1fms %9.2fms %10.1f %7.1f %8.1f\n",
				name, row.HandshakeTime*1000, row.AvgLatency*1000, row.Throughput, row.CPUUsage, row.MemoryUsage))
		}
	}

	b.WriteString("\n" + m.theme.panelTitle.Render("Connection") + "\n")
	if view.DebugAt.IsZero() {
		b.WriteString(m.theme.helpText.Render("Press d to load debug info.") + "\n")
	} else {
		dbg := view.Debug
		b.WriteString(fmt.Sprintf("user %s · room %s · handshake %s · %d messages · %s\n",
			sanitize.Name(dbg.Username, "?"), sanitize.Name(dbg.ActiveRoom, engine.MainRoomID),
			ternary(dbg.HandshakeComplete, "complete", "pending"), dbg.MessagesCount, shortClock(view.DebugAt)))
	}
	if view.Details.MessageID != "" {
		b.WriteString("\n" + m.theme.panelTitle.Render("Message "+sanitize.Name(view.Details.MessageID, "?")) + "\n")
		b.WriteString(m.theme.fileLine.Render(wrapText(compactTimelineMessage(view.Details.FullEncryptedHex, timelineMaxLines, timelineMaxChars), width)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *model) renderHelp() string {
	lines := []string{
		"Keys",
		"- Tab / Shift+Tab: switch views",
		"- Enter: send message or run a slash command (Chat tab)",
		"- Alt+Left / Alt+Right: previous / next room in history",
		"- Ctrl+R: refresh the room list",
		"- Timeline scroll: PgUp/PgDn, Up/Down (input empty), Home/End",
		"- Diagnostics tab: s security, p performance, d debug, m latest message details",
		"- Esc: quit prompt",
		"- Ctrl+C: quit",
		"",
		"Slash Commands",
		"- /connect <username> [server] [port]",
		"- /disconnect",
		"- /join <room_id>",
		"- /leave [room_id]",
		"- /create <room_id> <name> [description]",
		"- /rooms",
		"- /files [room|all]",
		"- /upload <path>",
		"- /back, /forward",
		"- /open <?room=id>",
		"- /diag security [test|all]",
		"- /diag perf [messages] [size] [protocol...]",
		"- /debug",
		"- /details <message_id>",
		"- /help",
		"- /quit",
		"",
		"Uploads: " + strings.Join(engine.AllowedExtensions(), " ") + " (max 50 MB)",
	}
	return m.theme.helpText.Render(strings.Join(lines, "\n"))
}

func (m *model) renderInput() string {
	contentWidth := maxInt(40, m.width-4)
	if m.activeTab != tabChat {
		return m.theme.inputPanel.Width(contentWidth).Render(m.theme.helpText.Render("Input disabled outside Chat tab. Press Tab to return."))
	}
	inputView := m.input.View()
	view := m.eng.View()
	for _, control := range busyControls {
		if view.Busy(control) {
			inputView = m.spinner.View() + " " + view.Label(control) + " " + inputView
			break
		}
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m *model) renderFooter() string {
	contentWidth := maxInt(40, m.width-4)
	statusStyle := m.theme.status
	switch m.statusLevel {
	case engine.LevelError:
		statusStyle = m.theme.errorStatus
	case engine.LevelSuccess:
		statusStyle = m.theme.successStatus
	}
	line := statusStyle.Render(compactSingleLine(sanitize.Text(m.statusLine), 180))
	hints := m.theme.helpText.Render("Keys: Tab switch view · Enter send · Alt+←/→ history · Ctrl+R rooms · Esc quit prompt · Ctrl+C quit")
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + hints)
}

func (m *model) renderQuitModal() string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.56), 42, 78)
	if modalWidth > canvasWidth-2 {
		modalWidth = canvasWidth - 2
	}

	body := strings.Join([]string{
		m.theme.errorStatus.Render("LEAVE NOISECHAT?"),
		m.theme.helpText.Render("The server keeps your session until you /disconnect."),
		"",
		m.theme.selected.Render("[Y / Enter] Quit") + "    " + m.theme.helpText.Render("[N / Esc] Return"),
	}, "\n")
	panel := m.theme.modalFrame.Width(modalWidth).Render(body)
	return lipgloss.Place(
		canvasWidth,
		canvasHeight,
		lipgloss.Center,
		lipgloss.Center,
		panel,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("#120924")),
	)
}

func shortTime(iso string) string {
	parsed, err := api.ParseTimestamp(iso)
	if err != nil {
		return "--:--:--"
	}
	return parsed.Format("15:04:05")
}

func shortClock(t time.Time) string {
	if t.IsZero() {
		return "--:--:--"
	}
	return t.Format("15:04:05")
}

func humanSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			wrapped = append(wrapped, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len(current)+1+len(word) <= width {
				current += " " + word
				continue
			}
			wrapped = append(wrapped, current)
			current = word
		}
		wrapped = append(wrapped, current)
	}
	return strings.Join(wrapped, "\n")
}

func compactTimelineMessage(text string, maxLines int, maxChars int) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if normalized == "" {
		return ""
	}
	rawLines := strings.Split(normalized, "\n")
	lines := make([]string, 0, len(rawLines))
	lastBlank := false
	for _, line := range rawLines {
		trimmed := strings.TrimRight(line, " \t")
		isBlank := strings.TrimSpace(trimmed) == ""
		if isBlank && lastBlank {
			continue
		}
		lines = append(lines, trimmed)
		lastBlank = isBlank
	}
	if maxLines > 0 && len(lines) > maxLines {
		hidden := len(lines) - maxLines
		lines = append(lines[:maxLines], fmt.Sprintf("[... %d lines hidden]", hidden))
	}
	joined := strings.TrimSpace(strings.Join(lines, "\n"))
	if maxChars > 0 && len(joined) > maxChars {
		return strings.TrimSpace(truncate(joined, maxChars-18) + "\n[... truncated]")
	}
	return joined
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func compactSingleLine(text string, limit int) string {
	return truncate(strings.Join(strings.Fields(text), " "), limit)
}

func nullCoalesce(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func ternary[T any](condition bool, whenTrue T, whenFalse T) T {
	if condition {
		return whenTrue
	}
	return whenFalse
}
