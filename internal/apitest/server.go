// Package apitest is an in-memory stand-in for the chat backend, used by
// tests that exercise the HTTP client and the engine end to end.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"noisechat/internal/api"
)

const (
	sessionCookie = "session"
	mainRoomID    = "main"
	mainRoomName  = "Main Room"
)

var allowedExtensions = map[string]bool{
	"txt": true, "pdf": true, "png": true, "jpg": true, "jpeg": true, "gif": true,
	"doc": true, "docx": true, "xls": true, "xlsx": true, "mp4": true, "mp3": true,
	"zip": true, "rar": true, "7z": true,
}

type session struct {
	id          string
	username    string
	server      string
	connected   bool
	connectedAt string
	activeRoom  string
	messages    []api.Message
}

type room struct {
	id          string
	name        string
	description string
	members     []string
}

type Server struct {
	mu        sync.Mutex
	sessions  map[string]*session
	rooms     map[string]*room
	roomOrder []string
	calls     map[string]int
	failing   bool

	diagPolls   int
	security    *diagRun
	performance *diagRun

	ts *httptest.Server
}

func New() *Server {
	s := &Server{
		sessions:  map[string]*session{},
		rooms:     map[string]*room{},
		calls:     map[string]int{},
		diagPolls: 2,
	}
	s.addRoom(mainRoomID, mainRoomName, "Default chat room for all users")
	s.ts = httptest.NewServer(s.Handler())
	return s
}

func (s *Server) URL() string { return s.ts.URL }

func (s *Server) Close() { s.ts.Close() }

// Handler builds the backend router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.middleware)
	r.Post("/connect", s.handleConnect)
	r.Post("/disconnect", s.handleDisconnect)
	r.Get("/status", s.handleStatus)
	r.Get("/rooms", s.handleRooms)
	r.Post("/create_room", s.handleCreateRoom)
	r.Post("/join_room", s.handleJoinRoom)
	r.Post("/leave_room", s.handleLeaveRoom)
	r.Get("/room_info/{roomID}", s.handleRoomInfo)
	r.Get("/messages", s.handleMessages)
	r.Post("/send", s.handleSend)
	r.Post("/upload", s.handleUpload)
	r.Get("/received_files", s.handleReceivedFiles)
	r.Post("/security_test", s.handleSecurityTest)
	r.Get("/security_test_status", s.handleSecurityTestStatus)
	r.Post("/performance_test", s.handlePerformanceTest)
	r.Get("/performance_test_status", s.handlePerformanceTestStatus)
	r.Get("/message_details", s.handleMessageDetails)
	r.Get("/debug", s.handleDebug)
	return r
}

// SetFailing makes every endpoint answer 503 until cleared.
func (s *Server) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// Calls reports how many requests hit path (without query).
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// AddRoom creates a room owned by nobody.
func (s *Server) AddRoom(id, name, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addRoom(id, name, description)
}

// Deliver drops an incoming message from sender into every connected
// member of roomID, as if another client had sent it.
func (s *Server) Deliver(roomID, sender, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return
	}
	msg := api.Message{
		Type:      api.TypeIncoming,
		Content:   content,
		Sender:    sender,
		Timestamp: time.Now().Format("2006-01-02T15:04:05.000000"),
		RoomID:    roomID,
		RoomName:  r.name,
		MessageID: uuid.NewString(),
	}
	for _, memberID := range r.members {
		if sess, ok := s.sessions[memberID]; ok && sess.connected {
			sess.messages = append(sess.messages, msg)
		}
	}
}

// DropSession marks the session of username as disconnected server-side.
func (s *Server) DropSession(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.username == username {
			sess.connected = false
		}
	}
}

func (s *Server) addRoom(id, name, description string) *room {
	r := &room{id: id, name: name, description: description}
	s.rooms[id] = r
	s.roomOrder = append(s.roomOrder, id)
	return r
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		path := r.URL.Path
		if strings.HasPrefix(path, "/room_info/") {
			path = "/room_info"
		}
		s.calls[path]++
		failing := s.failing
		s.mu.Unlock()
		if failing {
			http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// current returns the caller's session, or nil. Callers hold s.mu.
func (s *Server) current(r *http.Request) *session {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	sess, ok := s.sessions[c.Value]
	if !ok || !sess.connected {
		return nil
	}
	return sess
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, message string) {
	writeJSON(w, map[string]any{"success": false, "message": message})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req api.ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current(r) != nil {
		fail(w, "Already connected to a server")
		return
	}
	if req.Port <= 0 || req.Port > 65535 {
		fail(w, "Failed to connect to the server")
		return
	}
	sess := &session{
		id:          uuid.NewString(),
		username:    strings.TrimSpace(req.Username),
		server:      fmt.Sprintf("%s:%d", req.Server, req.Port),
		connected:   true,
		connectedAt: time.Now().Format(time.RFC3339),
		activeRoom:  mainRoomID,
	}
	s.sessions[sess.id] = sess
	s.rooms[mainRoomID].members = append(s.rooms[mainRoomID].members, sess.id)
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: sess.id, Path: "/", HttpOnly: true})
	writeJSON(w, map[string]any{"success": true, "message": fmt.Sprintf("Connected to %s as %s", sess.server, sess.username)})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		fail(w, "Not connected to any server")
		return
	}
	for _, rm := range s.rooms {
		rm.members = without(rm.members, sess.id)
	}
	delete(s.sessions, sess.id)
	writeJSON(w, map[string]any{"success": true, "message": "Disconnected from server"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		writeJSON(w, map[string]any{"connected": false, "username": nil, "server": nil})
		return
	}
	writeJSON(w, api.Status{
		Connected:   true,
		Username:    sess.username,
		Server:      sess.server,
		ConnectedAt: sess.connectedAt,
		ActiveRoom:  sess.activeRoom,
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current(r) == nil {
		fail(w, "Not connected to any server")
		return
	}
	rooms := make([]api.Room, 0, len(s.roomOrder))
	for _, id := range s.roomOrder {
		rm := s.rooms[id]
		rooms = append(rooms, api.Room{ID: rm.id, Name: rm.name, Description: rm.description, MemberCount: len(rm.members)})
	}
	writeJSON(w, api.RoomsResponse{Envelope: api.Envelope{Success: true}, Rooms: rooms})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		fail(w, "Not connected to any server")
		return
	}
	if req.RoomID == "" || req.RoomName == "" {
		fail(w, "Room ID and name are required")
		return
	}
	if _, exists := s.rooms[req.RoomID]; exists {
		fail(w, "Room with this ID already exists")
		return
	}
	rm := s.addRoom(req.RoomID, req.RoomName, req.Description)
	rm.members = append(rm.members, sess.id)
	writeJSON(w, map[string]any{"success": true, "message": fmt.Sprintf("Room %s created successfully", req.RoomName)})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"room_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		fail(w, "Not connected to any server")
		return
	}
	rm, ok := s.rooms[req.RoomID]
	if !ok {
		fail(w, "Room does not exist")
		return
	}
	message := "Already a member of this room"
	if !contains(rm.members, sess.id) {
		rm.members = append(rm.members, sess.id)
		message = fmt.Sprintf("Joined room %s successfully", rm.name)
		notice := api.Message{
			Type:      api.TypeSystem,
			Content:   fmt.Sprintf("User %s has joined the room", sess.username),
			Timestamp: time.Now().Format("2006-01-02T15:04:05.000000"),
			RoomID:    rm.id,
			RoomName:  rm.name,
			MessageID: uuid.NewString(),
		}
		for _, memberID := range rm.members {
			if member, ok := s.sessions[memberID]; ok {
				member.messages = append(member.messages, notice)
			}
		}
	}
	sess.activeRoom = rm.id
	writeJSON(w, api.JoinResponse{
		Envelope: api.Envelope{Success: true, Message: message},
		Room:     api.Room{ID: rm.id, Name: rm.name, Description: rm.description, MemberCount: len(rm.members)},
	})
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"room_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		fail(w, "Not connected to any server")
		return
	}
	rm, ok := s.rooms[req.RoomID]
	switch {
	case !ok:
		fail(w, "Room does not exist")
		return
	case rm.id == mainRoomID:
		fail(w, "Cannot leave the Main Room")
		return
	case !contains(rm.members, sess.id):
		fail(w, "Not a member of this room")
		return
	}
	rm.members = without(rm.members, sess.id)
	sess.activeRoom = mainRoomID
	writeJSON(w, api.LeaveResponse{
		Envelope: api.Envelope{Success: true, Message: fmt.Sprintf("Left room %s successfully", rm.name)},
	})
}

func (s *Server) handleRoomInfo(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		fail(w, "Not connected to any server")
		return
	}
	rm, ok := s.rooms[roomID]
	if !ok {
		fail(w, "Room not found")
		return
	}
	members := make([]api.Member, 0, len(rm.members))
	for _, memberID := range rm.members {
		if member, ok := s.sessions[memberID]; ok {
			members = append(members, api.Member{ID: member.id, Username: member.username, IsCurrentUser: member.id == sess.id})
		}
	}
	writeJSON(w, api.RoomInfoResponse{
		Envelope: api.Envelope{Success: true},
		Room:     api.Room{ID: rm.id, Name: rm.name, Description: rm.description, MemberCount: len(rm.members), Members: members},
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		writeJSON(w, map[string]any{"success": false, "messages": []api.Message{}, "connected": false})
		return
	}
	filter := r.URL.Query().Get("room")
	out := make([]api.Message, 0, len(sess.messages))
	for _, msg := range sess.messages {
		if filter == "" || msg.RoomID == filter {
			out = append(out, msg)
		}
	}
	writeJSON(w, api.MessagesResponse{
		Envelope:   api.Envelope{Success: true},
		Connected:  true,
		ActiveRoom: sess.activeRoom,
		Messages:   out,
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
		RoomID  string `json:"room_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		fail(w, "Not connected to any server")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		fail(w, "Empty message")
		return
	}
	roomID := req.RoomID
	if roomID == "" {
		roomID = sess.activeRoom
	}
	rm, ok := s.rooms[roomID]
	if !ok || !contains(rm.members, sess.id) {
		fail(w, "Not a member of room "+roomID)
		return
	}
	msg := api.Message{
		Type:      api.TypeOutgoing,
		Content:   text,
		Sender:    sess.username,
		Timestamp: time.Now().Format("2006-01-02T15:04:05.000000"),
		RoomID:    rm.id,
		RoomName:  rm.name,
		MessageID: uuid.NewString(),
	}
	s.fanOut(sess, rm, msg, api.TypeIncoming)
	writeJSON(w, map[string]any{"success": true, "message": "Message sent"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		fail(w, "No file part in request")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		fail(w, "No file part in request")
		return
	}
	defer file.Close()
	roomID := r.FormValue("room_id")
	if roomID == "" {
		roomID = mainRoomID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		fail(w, "Not connected to any server")
		return
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	if !allowedExtensions[ext] {
		fail(w, fmt.Sprintf("File type .%s is not allowed", ext))
		return
	}
	rm, ok := s.rooms[roomID]
	if !ok {
		fail(w, "Room does not exist")
		return
	}
	stored := uuid.NewString()[:10] + "_" + header.Filename
	info := &api.FileInfo{
		Filename:       header.Filename,
		StoredFilename: stored,
		Size:           header.Size,
		MimeType:       header.Header.Get("Content-Type"),
		URL:            "/files/" + stored,
		PublicURL:      "/files/" + stored,
		DownloadURL:    "/files/" + stored,
	}
	msg := api.Message{
		Type:      api.TypeOutgoingFile,
		Content:   "Sent a file: " + header.Filename,
		Sender:    sess.username,
		Timestamp: time.Now().Format("2006-01-02T15:04:05.000000"),
		RoomID:    rm.id,
		RoomName:  rm.name,
		FileInfo:  info,
		MessageID: uuid.NewString(),
	}
	s.fanOut(sess, rm, msg, api.TypeFile)
	writeJSON(w, api.UploadResponse{
		Envelope: api.Envelope{Success: true, Message: fmt.Sprintf("File %s uploaded successfully", header.Filename)},
		FilePath: "/files/" + stored,
		FileInfo: info,
	})
}

func (s *Server) handleReceivedFiles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.current(r)
	if sess == nil {
		fail(w, "Not connected to any server")
		return
	}
	filter := r.URL.Query().Get("room")
	files := []api.ReceivedFile{}
	for _, msg := range sess.messages {
		if msg.Type != api.TypeFile || msg.FileInfo == nil {
			continue
		}
		if filter != "" && filter != "all" && msg.RoomID != filter {
			continue
		}
		files = append(files, api.ReceivedFile{
			FileInfo:  *msg.FileInfo,
			Sender:    msg.Sender,
			Timestamp: msg.Timestamp,
			RoomID:    msg.RoomID,
			RoomName:  msg.RoomName,
			Type:      msg.Type,
		})
	}
	writeJSON(w, api.ReceivedFilesResponse{Envelope: api.Envelope{Success: true}, Files: files})
}

// fanOut stores msg for the sender and a copy retyped as peerType for
// every other member. Callers hold s.mu.
func (s *Server) fanOut(sender *session, rm *room, msg api.Message, peerType api.MessageType) {
	sender.messages = append(sender.messages, msg)
	peer := msg
	peer.Type = peerType
	for _, memberID := range rm.members {
		if memberID == sender.id {
			continue
		}
		if member, ok := s.sessions[memberID]; ok && member.connected {
			member.messages = append(member.messages, peer)
		}
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func without(list []string, value string) []string {
	out := list[:0]
	for _, item := range list {
		if item != value {
			out = append(out, item)
		}
	}
	return out
}

// Port parses the port of a "host:port" server string; handy in tests.
func Port(server string) int {
	idx := strings.LastIndex(server, ":")
	if idx < 0 {
		return 0
	}
	port, _ := strconv.Atoi(server[idx+1:])
	return port
}
