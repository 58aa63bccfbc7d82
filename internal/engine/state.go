package engine

import (
	"time"

	"noisechat/internal/api"
)

const (
	MainRoomID   = "main"
	WelcomeText  = "Beginning of secure conversation"
	mainRoomName = "Main Room"
)

// Session mirrors the backend session. Connected, Username and Server are
// written only by the status monitor.
type Session struct {
	Connected   bool
	Username    string
	Server      string
	ConnectedAt string
}

// State is the engine's single mutable record. ActiveRoomID is written
// only by the room controller; Rooms is replaced wholesale on every read.
type State struct {
	Session      Session
	ActiveRoomID string
	Rooms        []api.Room
}

func (s State) roomByID(id string) (api.Room, bool) {
	for _, room := range s.Rooms {
		if room.ID == id {
			return room, true
		}
	}
	return api.Room{}, false
}

func (s State) roomByName(name string) (api.Room, bool) {
	for _, room := range s.Rooms {
		if room.Name == name {
			return room, true
		}
	}
	return api.Room{}, false
}

type EntryKind int

const (
	EntryNotice EntryKind = iota
	EntryMessage
)

type Entry struct {
	Kind    EntryKind
	Text    string
	Message api.Message
}

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

type Notification struct {
	ID    int
	Level Level
	Text  string
	At    time.Time
}

// Control names a user-facing trigger that can be busy while its request
// is in flight.
type Control string

const (
	ControlConnect    Control = "connect"
	ControlDisconnect Control = "disconnect"
	ControlJoin       Control = "join"
	ControlLeave      Control = "leave"
	ControlCreate     Control = "create"
	ControlUpload     Control = "upload"
	ControlRooms      Control = "rooms"
	ControlFiles      Control = "files"
	ControlDiagnostic Control = "diagnostics"
	ControlDebug      Control = "debug"
)

var busyLabels = map[Control]string{
	ControlConnect:    "Connecting...",
	ControlDisconnect: "Disconnecting...",
	ControlJoin:       "Joining...",
	ControlLeave:      "Leaving...",
	ControlCreate:     "Creating...",
	ControlUpload:     "Uploading...",
	ControlRooms:      "Loading rooms...",
	ControlFiles:      "Loading files...",
	ControlDiagnostic: "Running tests...",
	ControlDebug:      "Loading debug info...",
}

var idleLabels = map[Control]string{
	ControlConnect:    "Connect",
	ControlDisconnect: "Disconnect",
	ControlJoin:       "Join",
	ControlLeave:      "Leave",
	ControlCreate:     "Create",
	ControlUpload:     "Upload",
	ControlRooms:      "Rooms",
	ControlFiles:      "Files",
	ControlDiagnostic: "Run tests",
	ControlDebug:      "Debug",
}

// View is what the UI renders. It is rebuilt in place by the engine and
// must be treated as read-only by callers.
type View struct {
	Entries           []Entry
	Members           []api.Member
	ChatVisible       bool
	InputEnabled      bool
	ActiveRoomName    string
	Notifications     []Notification
	ReceivedFiles     []api.ReceivedFile
	ReceivedFilesRoom string
	Report            Report
	Debug             api.ConnectionInfo
	DebugAt           time.Time
	Details           MessageDetail
	// ScrollSeq increases whenever entries are appended; the UI scrolls to
	// the newest entry when it changes.
	ScrollSeq int

	busy map[Control]int
}

func (v View) Busy(control Control) bool { return v.busy[control] > 0 }

// Label is the control's caption: a busy label while pending, its own
// label otherwise.
func (v View) Label(control Control) string {
	if v.Busy(control) {
		return busyLabels[control]
	}
	return idleLabels[control]
}

// Counts reports structural messages and notices currently shown.
func (v View) Counts() (messages, notices int) {
	for _, entry := range v.Entries {
		if entry.Kind == EntryMessage {
			messages++
		} else {
			notices++
		}
	}
	return messages, notices
}
