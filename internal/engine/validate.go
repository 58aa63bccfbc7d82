package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"noisechat/internal/api"
)

const MaxUploadBytes int64 = 50 << 20

var allowedExtensions = map[string]bool{
	"txt": true, "pdf": true, "png": true, "jpg": true, "jpeg": true, "gif": true,
	"doc": true, "docx": true, "xls": true, "xlsx": true, "mp4": true, "mp3": true,
	"zip": true, "rar": true, "7z": true,
}

// ValidationError is raised before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func ValidateConnect(username, server string, port int) error {
	if strings.TrimSpace(username) == "" {
		return invalid("username", "Username is required")
	}
	if strings.TrimSpace(server) == "" {
		return invalid("server", "Server address is required")
	}
	if port < 1 || port > 65535 {
		return invalid("port", "Port must be between 1 and 65535")
	}
	return nil
}

func ValidateRoomID(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return invalid("room_id", "Room ID is required")
	}
	if strings.ContainsAny(roomID, " /?#") {
		return invalid("room_id", "Room ID must not contain spaces or / ? #")
	}
	return nil
}

func ValidateCreateRoom(roomID, roomName string) error {
	if err := ValidateRoomID(roomID); err != nil {
		return err
	}
	if strings.TrimSpace(roomName) == "" {
		return invalid("room_name", "Room name is required")
	}
	return nil
}

// ValidateUpload checks the extension and size of a file about to be sent.
func ValidateUpload(name string, size int64) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return invalid("file", "File has no extension")
	}
	if !allowedExtensions[ext] {
		return invalid("file", "File type .%s is not allowed", ext)
	}
	if size > MaxUploadBytes {
		return invalid("file", "File is too large (max %d MB)", MaxUploadBytes>>20)
	}
	return nil
}

func statUpload(path string) error {
	if strings.TrimSpace(path) == "" {
		return invalid("file", "No file selected")
	}
	info, err := os.Stat(path)
	if err != nil {
		return invalid("file", "Cannot read %s", filepath.Base(path))
	}
	if info.IsDir() {
		return invalid("file", "%s is a directory", filepath.Base(path))
	}
	return ValidateUpload(info.Name(), info.Size())
}

// ValidateSecurityTest accepts "all" or one of the named checks.
func ValidateSecurityTest(test string) error {
	if test == "all" {
		return nil
	}
	if slices.Contains(api.SecurityTests, test) {
		return nil
	}
	return invalid("test", "Unknown security test %q (try: all, %s)", test, strings.Join(api.SecurityTests, ", "))
}

func ValidatePerformanceTest(req api.PerformanceTestRequest) error {
	if req.NumMessages < 1 || req.NumMessages > 100000 {
		return invalid("num_messages", "Message count must be between 1 and 100000")
	}
	if req.MessageSize < 1 || req.MessageSize > 1<<20 {
		return invalid("message_size", "Message size must be between 1 and %d bytes", 1<<20)
	}
	if len(req.Protocols) == 0 {
		return invalid("protocols", "Select at least one protocol")
	}
	for _, p := range req.Protocols {
		if p != "all" && !slices.Contains(api.Protocols, p) {
			return invalid("protocols", "Unknown protocol %q", p)
		}
	}
	return nil
}
