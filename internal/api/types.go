package api

import (
	"errors"
	"strings"
	"time"
)

// MessageType tags a message variant. Direction and file-ness are
// orthogonal: see IsOutgoing and IsFile.
type MessageType string

const (
	TypeIncoming     MessageType = "incoming"
	TypeOutgoing     MessageType = "outgoing"
	TypeSystem       MessageType = "system"
	TypeFile         MessageType = "file"
	TypeOutgoingFile MessageType = "outgoing_file"
)

func (t MessageType) IsOutgoing() bool {
	return t == TypeOutgoing || t == TypeOutgoingFile
}

func (t MessageType) IsFile() bool {
	return t == TypeFile || t == TypeOutgoingFile
}

func (t MessageType) IsSystem() bool {
	return t == TypeSystem
}

// Direction is "outgoing" or "incoming".
func (t MessageType) Direction() string {
	if t.IsOutgoing() {
		return "outgoing"
	}
	return "incoming"
}

type FileInfo struct {
	Filename       string `json:"filename"`
	StoredFilename string `json:"stored_filename"`
	Size           int64  `json:"size"`
	MimeType       string `json:"mime_type"`
	DownloadURL    string `json:"download_url,omitempty"`
	URL            string `json:"url,omitempty"`
	PublicURL      string `json:"public_url,omitempty"`
	MD5            string `json:"md5,omitempty"`
}

// ResolvedURL picks download_url, url, public_url in that order and falls
// back to the stored filename under /files/.
func (f FileInfo) ResolvedURL() string {
	for _, candidate := range []string{f.DownloadURL, f.URL, f.PublicURL} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	if strings.TrimSpace(f.StoredFilename) == "" {
		return ""
	}
	return "/files/" + f.StoredFilename
}

type Encryption struct {
	KeyID            string `json:"key_id,omitempty"`
	EncryptedHex     string `json:"encrypted_hex,omitempty"`
	FullEncryptedHex string `json:"full_encrypted_hex,omitempty"`
	OriginalSize     int64  `json:"original_size,omitempty"`
	EncryptedSize    int64  `json:"encrypted_size,omitempty"`
	Nonce            string `json:"nonce,omitempty"`
	Algorithm        string `json:"algorithm,omitempty"`
	Timestamp        string `json:"timestamp,omitempty"`
}

// Message is immutable once received. MessageID is carried as sent but
// the backend does not guarantee it, so identity is derived from content
// (see engine.Fingerprint).
type Message struct {
	Type       MessageType `json:"type"`
	Content    string      `json:"content"`
	Sender     string      `json:"sender,omitempty"`
	Timestamp  string      `json:"timestamp,omitempty"`
	RoomID     string      `json:"room_id,omitempty"`
	RoomName   string      `json:"room_name,omitempty"`
	Encryption *Encryption `json:"encryption,omitempty"`
	Decryption *Encryption `json:"decryption,omitempty"`
	FileInfo   *FileInfo   `json:"file_info,omitempty"`
	MessageID  string      `json:"message_id,omitempty"`
}

// Time parses the backend timestamp. Python isoformat() omits the zone,
// so naive layouts are tried after RFC 3339.
func (m Message) Time() (time.Time, error) {
	return ParseTimestamp(m.Timestamp)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func ParseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, trimmed, time.Local)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

type Member struct {
	ID            string `json:"id,omitempty"`
	Username      string `json:"username"`
	IsCurrentUser bool   `json:"is_current_user"`
}

type Room struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	MemberCount int      `json:"member_count"`
	Members     []Member `json:"members,omitempty"`
}

type Status struct {
	Connected   bool   `json:"connected"`
	Username    string `json:"username"`
	Server      string `json:"server"`
	ConnectedAt string `json:"connected_at,omitempty"`
	ActiveRoom  string `json:"active_room,omitempty"`
}

type ConnectRequest struct {
	Username string `json:"username"`
	Server   string `json:"server"`
	Port     int    `json:"port"`
}

type CreateRoomRequest struct {
	RoomID      string `json:"room_id"`
	RoomName    string `json:"room_name"`
	Description string `json:"description"`
}

type roomRequest struct {
	RoomID string `json:"room_id"`
}

type sendRequest struct {
	Message string `json:"message"`
	RoomID  string `json:"room_id"`
}

// Envelope is the {success, message} pair every mutating endpoint returns.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (e Envelope) envelope() Envelope { return e }

type enveloped interface {
	envelope() Envelope
}

type Result struct {
	Envelope
}

type RoomsResponse struct {
	Envelope
	Rooms []Room `json:"rooms"`
}

type JoinResponse struct {
	Envelope
	Room Room `json:"room"`
}

type LeaveResponse struct {
	Envelope
	NewActiveRoom string `json:"new_active_room,omitempty"`
}

type RoomInfoResponse struct {
	Envelope
	Room Room `json:"room"`
}

type MessagesResponse struct {
	Envelope
	Connected  bool      `json:"connected"`
	ActiveRoom string    `json:"active_room,omitempty"`
	Messages   []Message `json:"messages"`
}

type UploadResponse struct {
	Envelope
	FilePath   string      `json:"file_path,omitempty"`
	FileInfo   *FileInfo   `json:"file_info,omitempty"`
	Encryption *Encryption `json:"encryption,omitempty"`
}

type ReceivedFile struct {
	FileInfo  FileInfo    `json:"file_info"`
	Sender    string      `json:"sender"`
	Timestamp string      `json:"timestamp"`
	RoomID    string      `json:"room_id"`
	RoomName  string      `json:"room_name"`
	Type      MessageType `json:"type"`
}

type ReceivedFilesResponse struct {
	Envelope
	Files []ReceivedFile `json:"files"`
}
