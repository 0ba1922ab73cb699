// Package fakeengine provides a fake whiteboard engine speaking the bridge
// protocol over WebSocket, for integration tests.
//
// The WebSocket server is implemented using the `gws` library. Frames are
// CBOR when the client sends binary messages and JSON when it sends text
// messages; replies use the same encoding.
//
// Besides answering every bridge method against in-memory rooms, the server
// can hold requests unanswered, fail methods with engine errors, push
// events, drop connections and inject transport failures.
package fakeengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/lxzan/gws"

	"github.com/whiteboard-sdk/whiteboard.go/internal/codec"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/camera"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/token"
)

// FailureType represents the type of failure to inject during request processing
type FailureType string

const (
	// FailureResponseDelay delays the response (sent in background)
	FailureResponseDelay FailureType = "response_delay"
	// FailureWebSocketClose sends WebSocket close frame with configurable code/reason
	FailureWebSocketClose FailureType = "websocket_close"
	// FailureDropConnection immediately closes the underlying network connection
	FailureDropConnection FailureType = "drop_connection"
	// FailureInvalidResponse sends bytes that are not a frame instead of the reply
	FailureInvalidResponse FailureType = "invalid_response"
)

// FailureConfig defines how a method fails.
type FailureConfig struct {
	Type FailureType
	// Delay is used by FailureResponseDelay.
	Delay time.Duration
	// CloseCode is the WebSocket close code for FailureWebSocketClose
	CloseCode uint16
}

// Request is a bridge request the server received.
type Request struct {
	Room   string
	Method bridge.Method
	Params codec.RawMessage

	codec codec.Codec
}

// Decode decodes the request parameters into dst.
func (r Request) Decode(dst any) error {
	return r.Params.Decode(r.codec, dst)
}

type wireRequest struct {
	ID     string           `json:"id" cbor:"id"`
	Method bridge.Method    `json:"method" cbor:"method"`
	Params codec.RawMessage `json:"params,omitempty" cbor:"params,omitempty"`
}

type heldRequest struct {
	client *client
	req    wireRequest
}

type room struct {
	uuid       string
	tree       *scenes.Tree
	camera     camera.State
	background string
	durationMs int64
}

type client struct {
	id       string
	socket   *gws.Conn
	codec    codec.Codec
	opcode   gws.Opcode
	room     string
	observer int64
	role     token.Role
	writable bool

	listeners map[string]bool

	replay      bool
	playerPhase string
	scheduleMs  int64
	speed       float64
}

// Server is a fake whiteboard engine.
type Server struct {
	addr     string
	listener net.Listener
	server   *gws.Server
	secret   []byte

	mu           sync.Mutex
	rooms        map[string]*room
	clients      map[*gws.Conn]*client
	held         map[bridge.Method]bool
	heldRequests []heldRequest
	engineErrors map[bridge.Method]*bridge.Error
	failures     map[bridge.Method]FailureConfig
	requests     []Request
	snapshots    bool
	refuse       bool
	nextObserver int64
}

// Handler implements the gws.Handler interface for WebSocket connections
type Handler struct {
	gws.BuiltinEventHandler
	server *Server
}

// NewServer creates a fake engine verifying room tokens with secret.
// Use "127.0.0.1:0" to bind to a random available port.
func NewServer(addr string, secret []byte) *Server {
	s := &Server{
		addr:         addr,
		secret:       secret,
		rooms:        make(map[string]*room),
		clients:      make(map[*gws.Conn]*client),
		held:         make(map[bridge.Method]bool),
		engineErrors: make(map[bridge.Method]*bridge.Error),
		failures:     make(map[bridge.Method]FailureConfig),
		snapshots:    true,
		nextObserver: 1,
	}

	s.server = gws.NewServer(&Handler{server: s}, &gws.ServerOption{})
	s.server.OnError = func(_ net.Conn, err error) {
		if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
			log.Printf("fakeengine: server error: %v", err)
		}
	}
	return s
}

// Start starts the server and begins accepting WebSocket connections.
func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener

	go func() {
		if err := s.server.RunListener(listener); err != nil {
			if !errors.Is(err, net.ErrClosed) && !isUseOfClosedNetworkError(err) {
				log.Printf("fakeengine: server error: %v", err)
			}
		}
	}()
	return nil
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	s.DropConnections()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Address returns the actual address the server is listening on.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL is the websocket endpoint of the server.
func (s *Server) URL() string {
	return "ws://" + s.Address()
}

// AddRoom creates a live room with the given scenes.
func (s *Server) AddRoom(uuid string, entire map[string][]scenes.Scene) {
	s.addRoom(uuid, entire, 0)
}

// AddRecording creates a room with a recording of the given length.
func (s *Server) AddRecording(uuid string, entire map[string][]scenes.Scene, d time.Duration) {
	s.addRoom(uuid, entire, d.Milliseconds())
}

func (s *Server) addRoom(id string, entire map[string][]scenes.Scene, durationMs int64) {
	tree := scenes.NewTree()
	if err := tree.Replace(entire); err != nil {
		panic(fmt.Sprintf("fakeengine: invalid scenes for room %s: %v", id, err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[id] = &room{uuid: id, tree: tree, camera: camera.Initial(), background: "#ffffffff", durationMs: durationMs}
}

// Token issues a token for room signed with the server secret.
func (s *Server) Token(room string, role token.Role) string {
	tok, err := token.Issue(s.secret, room, role, time.Hour, time.Now())
	if err != nil {
		panic(fmt.Sprintf("fakeengine: issuing token: %v", err))
	}
	return tok
}

// Hold keeps requests of method unanswered until Release.
func (s *Server) Hold(method bridge.Method) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[method] = true
}

// Release stops holding method and answers the requests held so far.
func (s *Server) Release(method bridge.Method) {
	s.mu.Lock()
	delete(s.held, method)
	var release []heldRequest
	kept := s.heldRequests[:0]
	for _, h := range s.heldRequests {
		if h.req.Method == method {
			release = append(release, h)
		} else {
			kept = append(kept, h)
		}
	}
	s.heldRequests = kept
	s.mu.Unlock()

	for _, h := range release {
		s.answer(h.client, h.req)
	}
}

// HeldCount returns how many requests of method wait for Release.
func (s *Server) HeldCount(method bridge.Method) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.heldRequests {
		if h.req.Method == method {
			n++
		}
	}
	return n
}

// FailWith answers every request of method with err. A nil err restores
// normal handling.
func (s *Server) FailWith(method bridge.Method, err *bridge.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.engineErrors, method)
		return
	}
	s.engineErrors[method] = err
}

// InjectFailure makes requests of method fail at the transport level.
func (s *Server) InjectFailure(method bridge.Method, f FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = f
}

// SetSnapshotSupported toggles cross region snapshot support.
func (s *Server) SetSnapshotSupported(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = ok
}

// RefuseConnections makes the server close new connections as soon as
// they open.
func (s *Server) RefuseConnections(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

// DropConnections closes the network connection of every client.
func (s *Server) DropConnections() {
	s.mu.Lock()
	sockets := make([]*gws.Conn, 0, len(s.clients))
	for socket := range s.clients {
		sockets = append(sockets, socket)
	}
	s.mu.Unlock()

	for _, socket := range sockets {
		socket.NetConn().Close()
	}
}

// Clients returns the number of open connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Requests returns every request received for method, oldest first.
func (s *Server) Requests(method bridge.Method) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// Push sends an event to every client joined to room.
func (s *Server) Push(roomID string, kind bridge.EventKind, payload any) {
	for _, c := range s.joined(roomID) {
		s.sendEvent(c, kind, payload)
	}
}

// Scenes returns the scene set of room.
func (s *Server) Scenes(roomID string) map[string][]scenes.Scene {
	s.mu.Lock()
	r, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return r.tree.Entire()
}

// Camera returns the camera the engine holds for room.
func (s *Server) Camera(roomID string) camera.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return r.camera
	}
	return camera.State{}
}

// Background returns the background color of room.
func (s *Server) Background(roomID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return r.background
	}
	return ""
}

func (s *Server) joined(roomID string) []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*client
	for _, c := range s.clients {
		if c.room == roomID {
			out = append(out, c)
		}
	}
	return out
}

func (h *Handler) OnOpen(socket *gws.Conn) {
	s := h.server
	s.mu.Lock()
	refuse := s.refuse
	if !refuse {
		s.clients[socket] = &client{
			id:        uuid.Must(uuid.NewV4()).String(),
			socket:    socket,
			codec:     codec.CBOR(),
			opcode:    gws.OpcodeBinary,
			listeners: make(map[string]bool),
			speed:     1,
		}
	}
	s.mu.Unlock()

	if refuse {
		socket.NetConn().Close()
	}
}

func (h *Handler) OnClose(socket *gws.Conn, _ error) {
	h.server.mu.Lock()
	delete(h.server.clients, socket)
	h.server.mu.Unlock()
}

func (h *Handler) OnPing(socket *gws.Conn, payload []byte) {
	if err := socket.WritePong(payload); err != nil {
		log.Printf("fakeengine: writing pong: %v", err)
	}
}

func (h *Handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	s := h.server

	cd := codec.CBOR()
	if message.Opcode == gws.OpcodeText {
		cd = codec.JSON()
	}

	var req wireRequest
	if err := cd.Unmarshal(message.Bytes(), &req); err != nil {
		log.Printf("fakeengine: undecodable request: %v", err)
		return
	}

	s.mu.Lock()
	c, ok := s.clients[socket]
	if !ok {
		s.mu.Unlock()
		return
	}
	c.codec = cd
	c.opcode = message.Opcode
	s.requests = append(s.requests, Request{Room: c.room, Method: req.Method, Params: req.Params, codec: cd})
	if s.held[req.Method] {
		s.heldRequests = append(s.heldRequests, heldRequest{client: c, req: req})
		s.mu.Unlock()
		return
	}
	failure, failing := s.failures[req.Method]
	s.mu.Unlock()

	if failing && s.applyFailure(c, failure, req) {
		return
	}
	s.answer(c, req)
}

// applyFailure reports whether the normal reply must be skipped.
func (s *Server) applyFailure(c *client, f FailureConfig, req wireRequest) bool {
	switch f.Type {
	case FailureResponseDelay:
		go func() {
			time.Sleep(f.Delay)
			s.answer(c, req)
		}()
		return true
	case FailureWebSocketClose:
		code := f.CloseCode
		if code == 0 {
			code = 1001
		}
		c.socket.WriteClose(code, []byte("failure injection"))
		return true
	case FailureDropConnection:
		c.socket.NetConn().Close()
		return true
	case FailureInvalidResponse:
		_, opcode := s.encoding(c)
		if err := c.socket.WriteMessage(opcode, []byte{0xff, 0xff, 0xff}); err != nil {
			log.Printf("fakeengine: writing invalid response: %v", err)
		}
		return true
	}
	return false
}

func (s *Server) answer(c *client, req wireRequest) {
	s.mu.Lock()
	engineErr := s.engineErrors[req.Method]
	s.mu.Unlock()

	if engineErr != nil {
		s.sendError(c, req.ID, engineErr)
		return
	}

	cd, _ := s.encoding(c)
	in := Request{Method: req.Method, Params: req.Params, codec: cd}
	result, after, err := s.dispatch(c, in)
	if err != nil {
		s.sendError(c, req.ID, err)
		return
	}
	s.sendResult(c, req.ID, result)
	if after != nil {
		after()
	}
}

func (s *Server) encoding(c *client) (codec.Codec, gws.Opcode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.codec, c.opcode
}

func (s *Server) write(c *client, f bridge.Frame) {
	cd, opcode := s.encoding(c)
	data, err := cd.Marshal(f)
	if err != nil {
		log.Printf("fakeengine: encoding frame: %v", err)
		return
	}
	if err := c.socket.WriteMessage(opcode, data); err != nil {
		log.Printf("fakeengine: writing frame: %v", err)
	}
}

func (s *Server) sendResult(c *client, id string, result any) {
	var raw codec.RawMessage
	if result != nil {
		cd, _ := s.encoding(c)
		data, err := cd.Marshal(result)
		if err != nil {
			s.sendError(c, id, &bridge.Error{Code: bridge.CodeInternal, Message: err.Error()})
			return
		}
		raw = data
	}
	s.write(c, bridge.Frame{ID: id, Result: raw})
}

func (s *Server) sendError(c *client, id string, e *bridge.Error) {
	s.write(c, bridge.Frame{ID: id, Error: e})
}

func (s *Server) sendEvent(c *client, kind bridge.EventKind, payload any) {
	cd, _ := s.encoding(c)
	data, err := cd.Marshal(payload)
	if err != nil {
		log.Printf("fakeengine: encoding %s payload: %v", kind, err)
		return
	}
	s.write(c, bridge.Frame{Event: kind, Payload: data})
}

func isUseOfClosedNetworkError(err error) bool {
	return err != nil && strings.HasSuffix(err.Error(), "use of closed network connection")
}
