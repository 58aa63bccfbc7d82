package engine

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type Loop int

const (
	LoopStatus Loop = iota
	LoopMessages
	LoopMembers
	LoopDiagnostics
	loopCount
)

func (l Loop) String() string {
	switch l {
	case LoopStatus:
		return "status"
	case LoopMessages:
		return "messages"
	case LoopMembers:
		return "members"
	case LoopDiagnostics:
		return "diagnostics"
	default:
		return "unknown"
	}
}

// ScheduleFunc delivers msg after d. The default is tea.Tick; tests swap
// in a recorder so timers fire on demand.
type ScheduleFunc func(d time.Duration, msg tea.Msg) tea.Cmd

func TickSchedule(d time.Duration, msg tea.Msg) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return msg })
}

type pollTickMsg struct {
	loop   Loop
	gen    uint64
	target string
}

// Scheduler owns the polling loops. Each loop is a chain of ticks
// tagged with a generation; Start and Stop bump the generation so ticks
// from an older chain are rejected on arrival instead of being cancelled.
type Scheduler struct {
	intervals [loopCount]time.Duration
	gens      [loopCount]uint64
	running   [loopCount]bool
	targets   [loopCount]string
	starts    [loopCount]int
	schedule  ScheduleFunc
}

func NewScheduler(status, messages, members, diagnostics time.Duration, schedule ScheduleFunc) *Scheduler {
	if schedule == nil {
		schedule = TickSchedule
	}
	s := &Scheduler{schedule: schedule}
	s.intervals[LoopStatus] = status
	s.intervals[LoopMessages] = messages
	s.intervals[LoopMembers] = members
	s.intervals[LoopDiagnostics] = diagnostics
	return s
}

// Start (re)targets loop and arms its first tick one interval out. A loop
// that is already running is replaced, never duplicated.
func (s *Scheduler) Start(loop Loop, target string) tea.Cmd {
	s.gens[loop]++
	s.running[loop] = true
	s.targets[loop] = target
	s.starts[loop]++
	return s.arm(loop)
}

func (s *Scheduler) Stop(loop Loop) {
	if !s.running[loop] {
		return
	}
	s.gens[loop]++
	s.running[loop] = false
	s.targets[loop] = ""
}

func (s *Scheduler) Running(loop Loop) bool { return s.running[loop] }

func (s *Scheduler) Target(loop Loop) string { return s.targets[loop] }

// startCount counts Start calls per loop.
func (s *Scheduler) startCount(loop Loop) int { return s.starts[loop] }

func (s *Scheduler) accept(msg pollTickMsg) bool {
	return s.running[msg.loop] && msg.gen == s.gens[msg.loop]
}

// next arms the following tick of the current chain.
func (s *Scheduler) next(loop Loop) tea.Cmd {
	if !s.running[loop] {
		return nil
	}
	return s.arm(loop)
}

func (s *Scheduler) arm(loop Loop) tea.Cmd {
	return s.schedule(s.intervals[loop], pollTickMsg{loop: loop, gen: s.gens[loop], target: s.targets[loop]})
}
