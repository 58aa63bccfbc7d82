package engine

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func recordingSchedule(into *[]armed) ScheduleFunc {
	return func(d time.Duration, msg tea.Msg) tea.Cmd {
		*into = append(*into, armed{d: d, msg: msg})
		return nil
	}
}

func TestSchedulerStartReplacesChain(t *testing.T) {
	var timers []armed
	s := NewScheduler(time.Second, time.Second, 5*time.Second, 500*time.Millisecond, recordingSchedule(&timers))

	s.Start(LoopMembers, "team")
	s.Start(LoopMembers, "ops")

	old := timers[0].msg.(pollTickMsg)
	cur := timers[1].msg.(pollTickMsg)
	if s.accept(old) {
		t.Fatalf("tick from the replaced chain must be rejected")
	}
	if !s.accept(cur) || cur.target != "ops" {
		t.Fatalf("expected current tick accepted for ops, got %+v", cur)
	}
	if timers[1].d != 5*time.Second {
		t.Fatalf("expected member interval, got %s", timers[1].d)
	}
}

func TestSchedulerStopRejectsInflightTicks(t *testing.T) {
	var timers []armed
	s := NewScheduler(time.Second, time.Second, 5*time.Second, 500*time.Millisecond, recordingSchedule(&timers))

	s.Start(LoopMessages, "")
	s.Stop(LoopMessages)

	if s.accept(timers[0].msg.(pollTickMsg)) {
		t.Fatalf("tick armed before Stop must be rejected")
	}
	if s.next(LoopMessages) != nil || len(timers) != 1 {
		t.Fatalf("stopped loop must not arm further ticks")
	}
}

func TestSchedulerLoopsAreIndependent(t *testing.T) {
	var timers []armed
	s := NewScheduler(time.Second, time.Second, 5*time.Second, 500*time.Millisecond, recordingSchedule(&timers))

	s.Start(LoopStatus, "")
	s.Start(LoopMessages, "")
	s.Stop(LoopMessages)

	if !s.accept(timers[0].msg.(pollTickMsg)) {
		t.Fatalf("stopping one loop must not affect another")
	}
}
