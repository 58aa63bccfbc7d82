// Package engine reconciles the local chat view with a backend that only
// offers snapshot polling.
//
// The engine runs inside the bubbletea program loop. Every backend call is
// issued as a tea.Cmd that captures immutable inputs only, and every state
// change happens inside Update when the completion message comes back, so
// no locking is needed. Stale completions are recognised by comparing the
// room they were issued for against the current state.
package engine

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"noisechat/internal/api"
	"noisechat/internal/location"
)

// Backend is the request/response capability the engine drives.
// *api.Client implements it.
type Backend interface {
	Connect(ctx context.Context, req api.ConnectRequest) (api.Result, error)
	Disconnect(ctx context.Context) (api.Result, error)
	Status(ctx context.Context) (api.Status, error)
	Rooms(ctx context.Context) (api.RoomsResponse, error)
	CreateRoom(ctx context.Context, req api.CreateRoomRequest) (api.Result, error)
	JoinRoom(ctx context.Context, roomID string) (api.JoinResponse, error)
	LeaveRoom(ctx context.Context, roomID string) (api.LeaveResponse, error)
	RoomInfo(ctx context.Context, roomID string) (api.RoomInfoResponse, error)
	Messages(ctx context.Context, roomID string) (api.MessagesResponse, error)
	Send(ctx context.Context, text, roomID string) (api.Result, error)
	Upload(ctx context.Context, path, roomID string) (api.UploadResponse, error)
	ReceivedFiles(ctx context.Context, room string) (api.ReceivedFilesResponse, error)

	StartSecurityTest(ctx context.Context, test string) (api.SecurityTestStart, error)
	SecurityTestStatus(ctx context.Context, test string) (api.SecurityTestStatus, error)
	StartPerformanceTest(ctx context.Context, req api.PerformanceTestRequest) (api.PerformanceTestStart, error)
	PerformanceTestStatus(ctx context.Context, format string) (api.PerformanceTestStatus, error)
	MessageDetails(ctx context.Context, messageID string) (api.MessageDetails, error)
	Debug(ctx context.Context) (api.DebugInfo, error)
}

type Options struct {
	StatusInterval      time.Duration
	MessageInterval     time.Duration
	MemberInterval      time.Duration
	DiagnosticsInterval time.Duration
	NoticeTTL           time.Duration
	RejoinDelay         time.Duration
	// StatusFailureThreshold is the number of consecutive failed status
	// polls, while connected, that count as a disconnect.
	StatusFailureThreshold int

	Schedule ScheduleFunc
	Logger   zerolog.Logger
	Store    location.Store
	Context  context.Context
	Now      func() time.Time
}

func DefaultOptions() Options {
	return Options{
		StatusInterval:         time.Second,
		MessageInterval:        time.Second,
		MemberInterval:         5 * time.Second,
		DiagnosticsInterval:    500 * time.Millisecond,
		NoticeTTL:              5 * time.Second,
		RejoinDelay:            500 * time.Millisecond,
		StatusFailureThreshold: 1,
		Logger:                 zerolog.Nop(),
	}
}

type Engine struct {
	backend Backend
	loc     *location.Location
	opts    Options
	ctx     context.Context

	state State
	view  View
	cache *Cache
	sched *Scheduler

	statusFailures int
	disconnecting  bool
	nextNoticeID   int
	events         []string
	draft          string
}

func New(backend Backend, loc *location.Location, opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = defaults.StatusInterval
	}
	if opts.MessageInterval <= 0 {
		opts.MessageInterval = defaults.MessageInterval
	}
	if opts.MemberInterval <= 0 {
		opts.MemberInterval = defaults.MemberInterval
	}
	if opts.DiagnosticsInterval <= 0 {
		opts.DiagnosticsInterval = defaults.DiagnosticsInterval
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = defaults.NoticeTTL
	}
	if opts.RejoinDelay < 0 {
		opts.RejoinDelay = defaults.RejoinDelay
	}
	if opts.StatusFailureThreshold < 1 {
		opts.StatusFailureThreshold = defaults.StatusFailureThreshold
	}
	if opts.Schedule == nil {
		opts.Schedule = TickSchedule
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if loc == nil {
		loc = location.New("")
	}
	return &Engine{
		backend: backend,
		loc:     loc,
		opts:    opts,
		ctx:     opts.Context,
		cache:   NewCache(),
		sched:   NewScheduler(opts.StatusInterval, opts.MessageInterval, opts.MemberInterval, opts.DiagnosticsInterval, opts.Schedule),
		view:    View{busy: map[Control]int{}},
	}
}

// Init starts the status loop and polls once right away.
func (e *Engine) Init() tea.Cmd {
	return tea.Batch(e.statusCmd(), e.sched.Start(LoopStatus, ""))
}

func (e *Engine) State() State { return e.state }

func (e *Engine) View() View { return e.view }

func (e *Engine) Location() *location.Location { return e.loc }

func (e *Engine) Scheduler() *Scheduler { return e.sched }

func (e *Engine) displayedCount() int { return e.cache.Len() }

// DrainEvents returns log lines recorded since the last call.
func (e *Engine) DrainEvents() []string {
	out := e.events
	e.events = nil
	return out
}

// TakeDraft hands back text from a failed send, once.
func (e *Engine) TakeDraft() string {
	out := e.draft
	e.draft = ""
	return out
}

// Update routes completion and timer messages. Messages it does not own
// are ignored.
func (e *Engine) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case pollTickMsg:
		return e.handleTick(msg)
	case statusDoneMsg:
		return e.handleStatus(msg)
	case syncDoneMsg:
		return e.handleSync(msg)
	case membersDoneMsg:
		return e.handleMembers(msg)
	case locationLoadedMsg:
		return e.handleLocationLoaded(msg)
	case joinDoneMsg:
		return e.handleJoin(msg)
	case leaveDoneMsg:
		return e.handleLeave(msg)
	case rejoinMsg:
		return e.handleRejoin(msg)
	case createDoneMsg:
		return e.handleCreate(msg)
	case roomsDoneMsg:
		return e.handleRooms(msg)
	case connectDoneMsg:
		return e.handleConnect(msg)
	case disconnectDoneMsg:
		return e.handleDisconnect(msg)
	case sendDoneMsg:
		return e.handleSend(msg)
	case uploadDoneMsg:
		return e.handleUpload(msg)
	case filesDoneMsg:
		return e.handleFiles(msg)
	case diagStartedMsg:
		return e.handleDiagStarted(msg)
	case diagStatusMsg:
		return e.handleDiagStatus(msg)
	case debugDoneMsg:
		return e.handleDebug(msg)
	case detailsDoneMsg:
		return e.handleDetails(msg)
	case persistDoneMsg:
		if msg.err != nil {
			e.logger("engine.rooms").Warn().Err(msg.err).Msg("persist location failed")
		}
		return nil
	case dismissMsg:
		e.dismiss(msg.id)
		return nil
	}
	return nil
}

func (e *Engine) handleTick(msg pollTickMsg) tea.Cmd {
	if !e.sched.accept(msg) {
		e.logger("engine.scheduler").Debug().Stringer("loop", msg.loop).Uint64("gen", msg.gen).Msg("drop stale tick")
		return nil
	}
	next := e.sched.next(msg.loop)
	switch msg.loop {
	case LoopStatus:
		return tea.Batch(e.statusCmd(), next)
	case LoopMessages:
		return tea.Batch(e.syncCmd(e.resolveSyncRoom()), next)
	case LoopMembers:
		return tea.Batch(e.membersCmd(msg.target), next)
	case LoopDiagnostics:
		return tea.Batch(e.diagStatusCmd(), next)
	}
	return next
}

func (e *Engine) logger(module string) *zerolog.Logger {
	l := e.opts.Logger.With().Str("module", module).Logger()
	return &l
}

func (e *Engine) event(format string, args ...any) {
	e.events = append(e.events, fmt.Sprintf(format, args...))
}

// notify surfaces a transient notification and arms its dismissal.
func (e *Engine) notify(level Level, text string) tea.Cmd {
	e.nextNoticeID++
	id := e.nextNoticeID
	e.view.Notifications = append(e.view.Notifications, Notification{ID: id, Level: level, Text: text, At: e.opts.Now()})
	e.event("%s", text)
	return e.opts.Schedule(e.opts.NoticeTTL, dismissMsg{id: id})
}

func (e *Engine) notifyErr(err error, fallback string) tea.Cmd {
	var text string
	switch err.(type) {
	case *ValidationError:
		text = err.Error()
	default:
		text = api.UserMessage(err, fallback)
	}
	return e.notify(LevelError, text)
}

func (e *Engine) dismiss(id int) {
	kept := e.view.Notifications[:0]
	for _, n := range e.view.Notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	e.view.Notifications = kept
}

// beginControl marks control busy. It reports false, with a notification,
// when a request for the same control is already pending.
func (e *Engine) beginControl(control Control) (bool, tea.Cmd) {
	if e.view.busy[control] > 0 {
		return false, e.notify(LevelInfo, fmt.Sprintf("%s already in progress", idleLabels[control]))
	}
	e.view.busy[control]++
	return true, nil
}

func (e *Engine) endControl(control Control) {
	if e.view.busy[control] > 0 {
		e.view.busy[control]--
	}
}

type dismissMsg struct{ id int }

type persistDoneMsg struct{ err error }
