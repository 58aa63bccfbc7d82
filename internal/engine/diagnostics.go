package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"noisechat/internal/api"
)

type DiagnosticKind string

const (
	DiagSecurity    DiagnosticKind = "security"
	DiagPerformance DiagnosticKind = "performance"
)

// Status polls a run gets before it is closed with whatever the backend
// last reported.
const (
	securityPollBudget    = 20
	performancePollBudget = 50
)

func (k DiagnosticKind) budget() int {
	if k == DiagPerformance {
		return performancePollBudget
	}
	return securityPollBudget
}

// Report is the latest diagnostics run. Starting a run replaces it.
type Report struct {
	Run         int
	Kind        DiagnosticKind
	Test        string
	Format      string
	Running     bool
	Progress    int
	Polls       int
	Security    map[string]api.TestOutcome
	Performance map[string]api.ProtocolMetrics
	Err         string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Passed counts passing security checks.
func (r Report) Passed() (passed, total int) {
	for _, outcome := range r.Security {
		total++
		if outcome.Passed() {
			passed++
		}
	}
	return passed, total
}

// SecurityNames returns the checks in a stable order.
func (r Report) SecurityNames() []string {
	return sortedKeys(r.Security)
}

func (r Report) ProtocolNames() []string {
	return sortedKeys(r.Performance)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type MessageDetail struct {
	MessageID        string
	FullEncryptedHex string
}

// DefaultPerformanceTest is what the browser UI submits when nothing is
// changed.
func DefaultPerformanceTest() api.PerformanceTestRequest {
	return api.PerformanceTestRequest{
		NumMessages:  1000,
		MessageSize:  1024,
		Protocols:    []string{"noise", "tls13"},
		OutputFormat: "text",
	}
}

type diagStartedMsg struct {
	run  int
	kind DiagnosticKind
	text string
	err  error
}

type diagStatusMsg struct {
	run         int
	kind        DiagnosticKind
	status      string
	progress    int
	security    map[string]api.TestOutcome
	performance map[string]api.ProtocolMetrics
	err         error
}

type debugDoneMsg struct {
	info api.DebugInfo
	err  error
}

type detailsDoneMsg struct {
	id   string
	resp api.MessageDetails
	err  error
}

// RunSecurityTest starts the backend's protocol checks, "all" or one by
// name, and polls their status until they complete.
func (e *Engine) RunSecurityTest(test string) tea.Cmd {
	test = nullCoalesce(strings.TrimSpace(test), "all")
	if err := ValidateSecurityTest(test); err != nil {
		return e.notifyErr(err, "")
	}
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Please connect to a server before running security tests")
	}
	ok, cmd := e.beginControl(ControlDiagnostic)
	if !ok {
		return cmd
	}
	run := e.beginReport(DiagSecurity, test, "")
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.StartSecurityTest(ctx, test)
		return diagStartedMsg{run: run, kind: DiagSecurity, text: resp.Message, err: err}
	}
}

// RunPerformanceTest starts a protocol comparison and polls for results.
func (e *Engine) RunPerformanceTest(req api.PerformanceTestRequest) tea.Cmd {
	req.OutputFormat = nullCoalesce(req.OutputFormat, "text")
	if err := ValidatePerformanceTest(req); err != nil {
		return e.notifyErr(err, "")
	}
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Please connect to a server before running performance tests")
	}
	ok, cmd := e.beginControl(ControlDiagnostic)
	if !ok {
		return cmd
	}
	run := e.beginReport(DiagPerformance, strings.Join(req.Protocols, ","), req.OutputFormat)
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.StartPerformanceTest(ctx, req)
		return diagStartedMsg{run: run, kind: DiagPerformance, text: resp.Message, err: err}
	}
}

func (e *Engine) beginReport(kind DiagnosticKind, test, format string) int {
	e.view.Report = Report{
		Run:       e.view.Report.Run + 1,
		Kind:      kind,
		Test:      test,
		Format:    format,
		Running:   true,
		StartedAt: e.opts.Now(),
	}
	return e.view.Report.Run
}

func (e *Engine) handleDiagStarted(msg diagStartedMsg) tea.Cmd {
	log := e.logger("engine.diagnostics")
	if msg.run != e.view.Report.Run || !e.view.Report.Running {
		log.Debug().Int("run", msg.run).Msg("drop start of an abandoned run")
		return nil
	}
	if msg.err != nil {
		log.Warn().Err(msg.err).Str("kind", string(msg.kind)).Msg("diagnostics start failed")
		e.endControl(ControlDiagnostic)
		e.view.Report.Running = false
		e.view.Report.FinishedAt = e.opts.Now()
		e.view.Report.Err = api.UserMessage(msg.err, fmt.Sprintf("Failed to start %s tests", msg.kind))
		return e.notify(LevelError, e.view.Report.Err)
	}
	e.event("%s run %d started", msg.kind, msg.run)
	return tea.Batch(
		e.notify(LevelInfo, nullCoalesce(msg.text, fmt.Sprintf("Running %s tests...", msg.kind))),
		e.sched.Start(LoopDiagnostics, string(msg.kind)),
	)
}

func (e *Engine) diagStatusCmd() tea.Cmd {
	report := e.view.Report
	if !report.Running {
		return nil
	}
	backend, ctx := e.backend, e.ctx
	run, kind, test, format := report.Run, report.Kind, report.Test, report.Format
	return func() tea.Msg {
		out := diagStatusMsg{run: run, kind: kind}
		switch kind {
		case DiagPerformance:
			resp, err := backend.PerformanceTestStatus(ctx, format)
			out.status, out.progress, out.performance, out.err = resp.Status, resp.Progress, resp.Results, err
		default:
			resp, err := backend.SecurityTestStatus(ctx, test)
			out.status, out.progress, out.security, out.err = resp.Status, resp.Progress, resp.Results, err
			if err == nil && resp.Result != nil {
				out.security = map[string]api.TestOutcome{test: *resp.Result}
			}
		}
		return out
	}
}

// handleDiagStatus records a status poll. The run closes when the backend
// reports completion or the poll budget runs out.
func (e *Engine) handleDiagStatus(msg diagStatusMsg) tea.Cmd {
	log := e.logger("engine.diagnostics")
	report := &e.view.Report
	if msg.run != report.Run || !report.Running {
		log.Debug().Int("run", msg.run).Msg("drop stale diagnostics status")
		return nil
	}
	report.Polls++
	if msg.err != nil {
		log.Debug().Err(msg.err).Int("polls", report.Polls).Msg("diagnostics status failed")
		if report.Polls >= msg.kind.budget() {
			report.Err = fmt.Sprintf("No %s test results available", msg.kind)
			return e.finishReport()
		}
		return nil
	}
	report.Progress = msg.progress
	if msg.security != nil {
		report.Security = msg.security
	}
	if msg.performance != nil {
		report.Performance = msg.performance
	}
	if msg.status == api.RunCompleted || report.Polls >= msg.kind.budget() {
		return e.finishReport()
	}
	return nil
}

func (e *Engine) finishReport() tea.Cmd {
	report := &e.view.Report
	e.sched.Stop(LoopDiagnostics)
	e.endControl(ControlDiagnostic)
	report.Running = false
	report.FinishedAt = e.opts.Now()
	e.event("%s run %d finished after %d polls", report.Kind, report.Run, report.Polls)

	switch {
	case report.Kind == DiagSecurity && len(report.Security) > 0:
		report.Progress = 100
		passed, total := report.Passed()
		level := LevelSuccess
		if passed < total {
			level = LevelError
		}
		return e.notify(level, fmt.Sprintf("Security tests finished: %d/%d passed", passed, total))
	case report.Kind == DiagPerformance && len(report.Performance) > 0:
		report.Progress = 100
		return e.notify(LevelSuccess, fmt.Sprintf("Performance test finished for %d protocols", len(report.Performance)))
	}
	report.Err = nullCoalesce(report.Err, fmt.Sprintf("No %s test results available", report.Kind))
	return e.notify(LevelError, report.Err)
}

// abortReport ends a run the session can no longer see through.
func (e *Engine) abortReport(reason string) {
	report := &e.view.Report
	if !report.Running {
		return
	}
	e.sched.Stop(LoopDiagnostics)
	e.endControl(ControlDiagnostic)
	report.Running = false
	report.FinishedAt = e.opts.Now()
	report.Err = reason
	e.event("%s run %d aborted: %s", report.Kind, report.Run, reason)
}

// LoadDebug fetches the backend's view of this session.
func (e *Engine) LoadDebug() tea.Cmd {
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Not connected to any server")
	}
	ok, cmd := e.beginControl(ControlDebug)
	if !ok {
		return cmd
	}
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		info, err := backend.Debug(ctx)
		return debugDoneMsg{info: info, err: err}
	}
}

func (e *Engine) handleDebug(msg debugDoneMsg) tea.Cmd {
	e.endControl(ControlDebug)
	if msg.err != nil {
		e.logger("engine.diagnostics").Warn().Err(msg.err).Msg("debug info failed")
		return e.notifyErr(msg.err, "Failed to load debug info")
	}
	e.view.Debug = msg.info.Connection
	e.view.DebugAt = e.opts.Now()
	return nil
}

// MessageDetails fetches the full ciphertext the backend kept for a
// message.
func (e *Engine) MessageDetails(messageID string) tea.Cmd {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return e.notifyErr(invalid("message_id", "Message ID is required"), "")
	}
	if !e.state.Session.Connected {
		return e.notify(LevelError, "Not connected to any server")
	}
	backend, ctx := e.backend, e.ctx
	return func() tea.Msg {
		resp, err := backend.MessageDetails(ctx, messageID)
		return detailsDoneMsg{id: messageID, resp: resp, err: err}
	}
}

func (e *Engine) handleDetails(msg detailsDoneMsg) tea.Cmd {
	if msg.err != nil {
		return e.notifyErr(msg.err, "Failed to load message details")
	}
	e.view.Details = MessageDetail{MessageID: msg.id, FullEncryptedHex: msg.resp.FullEncryptedHex}
	return nil
}
