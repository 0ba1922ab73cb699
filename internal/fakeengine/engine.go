package fakeengine

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"time"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/camera"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/events"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/token"
)

// Player phases as the engine names them.
const (
	PlayerWaitingFirstFrame = "waitingFirstFrame"
	PlayerPlaying           = "playing"
	PlayerPause             = "pause"
	PlayerBuffering         = "buffering"
	PlayerEnded             = "ended"
	PlayerStopped           = "stopped"
)

const (
	defaultImageWidth  = 64
	defaultImageHeight = 36
)

func invalidParams(method bridge.Method, err error) *bridge.Error {
	return &bridge.Error{Code: bridge.CodeInvalidParams, Message: fmt.Sprintf("%s: %v", method, err)}
}

//nolint:gocyclo,funlen
func (s *Server) dispatch(c *client, req Request) (any, func(), *bridge.Error) {
	switch req.Method {
	case bridge.JoinRoom:
		var p bridge.JoinParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		return s.join(c, p)
	case bridge.ReplayRoom:
		var p bridge.ReplayParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		return s.replay(c, p)
	}

	r, err := s.roomOf(c)
	if err != nil {
		return nil, nil, err
	}

	switch req.Method {
	case bridge.LeaveRoom:
		s.mu.Lock()
		c.room = ""
		c.listeners = make(map[string]bool)
		s.mu.Unlock()
		return nil, nil, nil

	case bridge.MoveCamera:
		var p camera.Config
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		s.mu.Lock()
		if p.CenterX != nil {
			r.camera.CenterX = *p.CenterX
		}
		if p.CenterY != nil {
			r.camera.CenterY = *p.CenterY
		}
		if p.Scale != nil {
			r.camera.Scale = *p.Scale
		}
		if p.Rotation != nil {
			r.camera.Rotation = *p.Rotation
		}
		s.mu.Unlock()
		return nil, nil, nil

	case bridge.MoveCameraToContainer:
		var p camera.Rectangle
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		s.mu.Lock()
		center := p.Center()
		r.camera.CenterX, r.camera.CenterY = center.X, center.Y
		s.mu.Unlock()
		return nil, nil, nil

	case bridge.ScaleToFit, bridge.SetCameraBound, bridge.DisableCameraTransform,
		bridge.DisableDeviceInputs, bridge.RefreshViewSize, bridge.PostIframeMessage:
		return nil, nil, nil

	case bridge.SetWritable:
		var p bridge.FlagParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if p.Value && !c.role.CanWrite() {
			return nil, nil, &bridge.Error{Code: bridge.CodeAuthorization, Message: "token does not allow writing"}
		}
		c.writable = p.Value
		return bridge.FlagParams{Value: c.writable}, nil, nil

	case bridge.SetBackgroundColor:
		var p bridge.ColorParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		s.mu.Lock()
		r.background = p.Color
		s.mu.Unlock()
		return nil, nil, nil

	case bridge.AddMagixEventListener, bridge.RemoveMagixEventListener:
		var p bridge.ListenerParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		s.mu.Lock()
		if req.Method == bridge.AddMagixEventListener {
			c.listeners[p.Name] = true
		} else {
			delete(c.listeners, p.Name)
		}
		s.mu.Unlock()
		return nil, nil, nil

	case bridge.DispatchMagixEvent:
		var p bridge.MagixParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		s.mu.Lock()
		writable, observer := c.writable, c.observer
		s.mu.Unlock()
		if !writable {
			return nil, nil, &bridge.Error{Code: bridge.CodeAuthorization, Message: "read-only members cannot dispatch events"}
		}
		ev := events.Event{Name: p.Name, Payload: p.Payload, AuthorID: observer, Scope: "room"}
		return nil, func() { s.broadcastMagix(r.uuid, ev) }, nil

	case bridge.GetEntireScenes:
		return r.tree.Entire(), nil, nil

	case bridge.SetScenePath:
		var p bridge.PathParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		if err := r.tree.SetCurrent(p.Path); err != nil {
			return nil, nil, &bridge.Error{Code: bridge.CodeInvalidPath, Message: err.Error()}
		}
		return nil, func() {
			s.Push(r.uuid, bridge.SceneStateChanged, bridge.SceneStatePayload{ScenePath: p.Path})
		}, nil

	case bridge.PutScenes:
		var p bridge.PutScenesParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		if err := r.tree.Put(p.Dir, p.Scenes, p.Index); err != nil {
			return nil, nil, &bridge.Error{Code: bridge.CodeInvalidPath, Message: err.Error()}
		}
		return nil, func() { s.pushScenes(r) }, nil

	case bridge.RemoveScenes:
		var p bridge.PathParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		if err := r.tree.Remove(p.Path); err != nil {
			return nil, nil, &bridge.Error{Code: bridge.CodeInvalidPath, Message: err.Error()}
		}
		return nil, func() { s.pushScenes(r) }, nil

	case bridge.GetScenePreviewImage, bridge.GetSceneSnapshotImage:
		var p bridge.ImageParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		s.mu.Lock()
		snapshots := s.snapshots
		s.mu.Unlock()
		if req.Method == bridge.GetSceneSnapshotImage && !snapshots {
			return nil, nil, &bridge.Error{Code: bridge.CodeUnsupported, Message: "image server does not support cross region snapshots"}
		}
		if t, err := r.tree.PathType(p.Path); err != nil || t != scenes.Page {
			return nil, nil, &bridge.Error{Code: bridge.CodeInvalidPath, Message: fmt.Sprintf("%q is not a page", p.Path)}
		}
		img, err := render(p.Width, p.Height)
		if err != nil {
			return nil, nil, &bridge.Error{Code: bridge.CodeInternal, Message: err.Error()}
		}
		return bridge.ImageResult{ContentType: "image/png", Data: img}, nil, nil

	case bridge.Play, bridge.Pause, bridge.Stop:
		next := map[bridge.Method]string{
			bridge.Play:  PlayerPlaying,
			bridge.Pause: PlayerPause,
			bridge.Stop:  PlayerStopped,
		}[req.Method]
		if err := s.setPlayerPhase(c, next); err != nil {
			return nil, nil, err
		}
		return nil, func() { s.sendEvent(c, bridge.PlayerPhaseChanged, bridge.PhasePayload{Phase: next}) }, nil

	case bridge.Seek:
		var p bridge.SeekParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		s.mu.Lock()
		if !c.replay {
			s.mu.Unlock()
			return nil, nil, notReplaying()
		}
		ms := min(max(p.Ms, 0), r.durationMs)
		c.scheduleMs = ms
		s.mu.Unlock()
		return nil, func() { s.sendEvent(c, bridge.ScheduleTimeChanged, bridge.ScheduleTimePayload{Ms: ms}) }, nil

	case bridge.SetPlaybackSpeed:
		var p bridge.SpeedParams
		if err := req.Decode(&p); err != nil {
			return nil, nil, invalidParams(req.Method, err)
		}
		if p.Speed <= 0 {
			return nil, nil, invalidParams(req.Method, fmt.Errorf("speed must be positive, got %v", p.Speed))
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if !c.replay {
			return nil, nil, notReplaying()
		}
		c.speed = p.Speed
		return nil, nil, nil
	}

	return nil, nil, &bridge.Error{Code: bridge.CodeUnsupported, Message: fmt.Sprintf("unknown method %q", req.Method)}
}

func notReplaying() *bridge.Error {
	return &bridge.Error{Code: bridge.CodeInvalidParams, Message: "connection is not replaying"}
}

func (s *Server) roomOf(c *client) (*room, *bridge.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.room == "" {
		return nil, &bridge.Error{Code: bridge.CodeInvalidParams, Message: "not joined to a room"}
	}
	r, ok := s.rooms[c.room]
	if !ok {
		return nil, &bridge.Error{Code: bridge.CodeNotFound, Message: "room was removed"}
	}
	return r, nil
}

func (s *Server) authorize(uuid, tok string) (*token.Claims, *room, *bridge.Error) {
	claims, err := token.Verify(s.secret, tok, time.Now())
	if err != nil {
		return nil, nil, &bridge.Error{Code: bridge.CodeAuthorization, Message: err.Error()}
	}
	if claims.Room != uuid {
		return nil, nil, &bridge.Error{Code: bridge.CodeAuthorization, Message: "token was issued for another room"}
	}
	s.mu.Lock()
	r, ok := s.rooms[uuid]
	s.mu.Unlock()
	if !ok {
		return nil, nil, &bridge.Error{Code: bridge.CodeNotFound, Message: fmt.Sprintf("room %s not found", uuid)}
	}
	return claims, r, nil
}

func (s *Server) join(c *client, p bridge.JoinParams) (any, func(), *bridge.Error) {
	claims, r, err := s.authorize(p.UUID, p.Token)
	if err != nil {
		return nil, nil, err
	}
	if p.Writable && !claims.Role.CanWrite() {
		return nil, nil, &bridge.Error{Code: bridge.CodeAuthorization, Message: "token does not allow writing"}
	}

	s.mu.Lock()
	c.room = r.uuid
	c.role = claims.Role
	c.writable = p.Writable
	c.observer = s.nextObserver
	s.nextObserver++
	c.listeners = make(map[string]bool, len(p.Listeners))
	for _, l := range p.Listeners {
		c.listeners[l.Name] = true
	}
	res := bridge.JoinResult{
		ObserverID:      c.observer,
		Writable:        c.writable,
		Camera:          r.camera,
		BackgroundColor: r.background,
	}
	s.mu.Unlock()

	res.Scenes = r.tree.Entire()
	res.ScenePath = r.tree.State().ScenePath
	return res, nil, nil
}

func (s *Server) replay(c *client, p bridge.ReplayParams) (any, func(), *bridge.Error) {
	_, r, err := s.authorize(p.UUID, p.Token)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	if r.durationMs == 0 {
		s.mu.Unlock()
		return nil, nil, &bridge.Error{Code: bridge.CodeNotFound, Message: fmt.Sprintf("room %s has no recording", r.uuid)}
	}
	c.room = r.uuid
	c.role = token.RoleReader
	c.replay = true
	c.observer = s.nextObserver
	s.nextObserver++
	c.playerPhase = PlayerWaitingFirstFrame
	c.scheduleMs = 0
	c.listeners = make(map[string]bool, len(p.Listeners))
	for _, l := range p.Listeners {
		c.listeners[l.Name] = true
	}
	duration := r.durationMs
	if p.DurationMs > 0 && p.DurationMs < duration {
		duration = p.DurationMs
	}
	res := bridge.JoinResult{
		ObserverID:      c.observer,
		Camera:          r.camera,
		BackgroundColor: r.background,
		DurationMs:      duration,
		PlayerPhase:     PlayerWaitingFirstFrame,
	}
	s.mu.Unlock()

	res.Scenes = r.tree.Entire()
	res.ScenePath = r.tree.State().ScenePath

	// The first frame is ready as soon as the replay is opened.
	after := func() {
		s.mu.Lock()
		c.playerPhase = PlayerPause
		s.mu.Unlock()
		s.sendEvent(c, bridge.PlayerPhaseChanged, bridge.PhasePayload{Phase: PlayerPause})
	}
	return res, after, nil
}

func (s *Server) setPlayerPhase(c *client, next string) *bridge.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !c.replay {
		return notReplaying()
	}
	if c.playerPhase == PlayerStopped {
		return &bridge.Error{Code: bridge.CodeInvalidParams, Message: "replay is stopped"}
	}
	c.playerPhase = next
	return nil
}

// AdvanceReplay moves every playing replay forward by d of wall time,
// scaled by its playback speed, and reports the new schedule time. A
// replay reaching the end of its recording ends.
func (s *Server) AdvanceReplay(d time.Duration) {
	type update struct {
		c     *client
		ms    int64
		ended bool
	}
	var updates []update

	s.mu.Lock()
	for _, c := range s.clients {
		if !c.replay || c.playerPhase != PlayerPlaying {
			continue
		}
		duration := s.rooms[c.room].durationMs
		c.scheduleMs += int64(float64(d.Milliseconds()) * c.speed)
		u := update{c: c}
		if c.scheduleMs >= duration {
			c.scheduleMs = duration
			c.playerPhase = PlayerEnded
			u.ended = true
		}
		u.ms = c.scheduleMs
		updates = append(updates, u)
	}
	s.mu.Unlock()

	for _, u := range updates {
		s.sendEvent(u.c, bridge.ScheduleTimeChanged, bridge.ScheduleTimePayload{Ms: u.ms})
		if u.ended {
			s.sendEvent(u.c, bridge.PlayerPhaseChanged, bridge.PhasePayload{Phase: PlayerEnded})
		}
	}
}

// Kick removes every member of room, telling them why.
func (s *Server) Kick(roomID, reason string) {
	for _, c := range s.joined(roomID) {
		s.sendEvent(c, bridge.Kicked, bridge.KickedPayload{Reason: reason})
	}
}

func (s *Server) broadcastMagix(roomID string, ev events.Event) {
	for _, c := range s.joined(roomID) {
		s.mu.Lock()
		listening := c.listeners[ev.Name]
		s.mu.Unlock()
		if listening {
			s.sendEvent(c, bridge.MagixEvent, ev)
		}
	}
}

func (s *Server) pushScenes(r *room) {
	s.Push(r.uuid, bridge.ScenesChanged, bridge.ScenesPayload{
		Scenes:    r.tree.Entire(),
		ScenePath: r.tree.State().ScenePath,
	})
}

func render(width, height int) ([]byte, error) {
	if width <= 0 {
		width = defaultImageWidth
	}
	if height <= 0 {
		height = defaultImageHeight
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := color.RGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
