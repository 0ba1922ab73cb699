package whiteboard_test

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	whiteboard "github.com/whiteboard-sdk/whiteboard.go"
	"github.com/whiteboard-sdk/whiteboard.go/internal/fakeengine"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/camera"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/config"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/events"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/imageservice"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/phase"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/token"
)

const (
	roomID      = "room-1"
	recordingID = "rec-1"
	waitFor     = 5 * time.Second
	tick        = 10 * time.Millisecond
)

var secret = []byte("whiteboard-test")

func startEngine(t *testing.T) *fakeengine.Server {
	t.Helper()
	s := fakeengine.NewServer("127.0.0.1:0", secret)
	s.AddRoom(roomID, map[string][]scenes.Scene{
		"/":    {{Name: "init"}},
		"/ppt": {{Name: "1", Ppt: &scenes.Ppt{Src: "https://cdn/1.png", Width: 960, Height: 540}}},
	})
	s.AddRecording(recordingID, map[string][]scenes.Scene{"/": {{Name: "init"}}}, 10*time.Second)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func sessionOptions(s *fakeengine.Server, extra ...whiteboard.Option) []whiteboard.Option {
	return append([]whiteboard.Option{
		whiteboard.WithURL(s.URL()),
		whiteboard.WithLogger(logger.Nop()),
		whiteboard.WithViewSize(800, 600),
	}, extra...)
}

func newRoom(t *testing.T, s *fakeengine.Server, role token.Role, opts ...config.Option) *whiteboard.Room {
	t.Helper()
	cfg, err := config.NewRoom(roomID, s.Token(roomID, role), opts...)
	require.NoError(t, err)
	room, err := whiteboard.Connect(context.Background(), cfg, sessionOptions(s)...)
	require.NoError(t, err)
	t.Cleanup(func() { await(t, room.Disconnect()) })
	return room
}

func joinRoom(t *testing.T, s *fakeengine.Server, role token.Role, opts ...config.Option) *whiteboard.Room {
	t.Helper()
	room := newRoom(t, s, role, opts...)
	await(t, room.Joined())
	return room
}

func await[T any](t *testing.T, f *whiteboard.Future[T]) T {
	t.Helper()
	v, err := awaitErr(t, f)
	require.NoError(t, err)
	return v
}

func awaitErr[T any](t *testing.T, f *whiteboard.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	v, err := f.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future did not settle")
	return v, err
}

type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
}

func (r *recorder[T]) all() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.items...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

func TestConnect(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	assert.Equal(t, phase.Connected, room.Phase())
	assert.Equal(t, roomID, room.UUID())
	assert.NotEmpty(t, room.SessionID())
	assert.True(t, room.Writable())
	assert.Equal(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}, room.BackgroundColor())
	assert.Equal(t, "/init", room.SceneState().ScenePath)

	cases := map[string]scenes.PathType{
		"/":       scenes.Dir,
		"/init":   scenes.Page,
		"/ppt":    scenes.Dir,
		"/ppt/1":  scenes.Page,
		"/nope":   scenes.Empty,
		"/Init":   scenes.Empty,
		"/ppt/1x": scenes.Empty,
	}
	for path, want := range cases {
		got, err := room.GetScenePathType(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}

	_, err := room.GetScenePathType("ppt/")
	assert.ErrorIs(t, err, constants.ErrInvalidPath)
}

func TestConnectSessionsAreDistinct(t *testing.T) {
	s := startEngine(t)
	a := joinRoom(t, s, token.RoleWriter)
	b := joinRoom(t, s, token.RoleWriter)

	assert.NotEqual(t, a.SessionID(), b.SessionID())
	assert.NotEqual(t, a.ObserverID(), b.ObserverID())
}

func TestConnectValidation(t *testing.T) {
	s := startEngine(t)

	_, err := whiteboard.Connect(context.Background(), nil, sessionOptions(s)...)
	assert.ErrorIs(t, err, constants.ErrInvalidConfig)

	cfg, err := config.NewRoom(roomID, s.Token("other-room", token.RoleWriter))
	require.NoError(t, err)
	_, err = whiteboard.Connect(context.Background(), cfg, sessionOptions(s)...)
	assert.ErrorIs(t, err, constants.ErrAuthorization)

	cfg, err = config.NewRoom(roomID, "not-a-token")
	require.NoError(t, err)
	_, err = whiteboard.Connect(context.Background(), cfg, sessionOptions(s)...)
	assert.ErrorIs(t, err, constants.ErrAuthorization)

	cfg, err = config.NewRoom(roomID, s.Token(roomID, token.RoleWriter))
	require.NoError(t, err)
	_, err = whiteboard.Connect(context.Background(), cfg)
	assert.ErrorIs(t, err, constants.ErrInvalidConfig)

	_, err = whiteboard.Connect(context.Background(), cfg, whiteboard.WithURL(s.URL()), whiteboard.WithCodec("xml"))
	assert.ErrorIs(t, err, constants.ErrInvalidConfig)

	_, err = whiteboard.Connect(context.Background(), cfg, whiteboard.WithURL(s.URL()), whiteboard.WithViewSize(-1, 10))
	assert.ErrorIs(t, err, constants.ErrInvalidConfig)
}

func TestConnectOverJSON(t *testing.T) {
	s := startEngine(t)
	cfg, err := config.NewRoom(roomID, s.Token(roomID, token.RoleWriter),
		config.WithUserPayload(map[string]any{"name": "ada"}))
	require.NoError(t, err)

	room, err := whiteboard.Connect(context.Background(), cfg, sessionOptions(s, whiteboard.WithCodec("json"))...)
	require.NoError(t, err)
	defer await(t, room.Disconnect())
	await(t, room.Joined())

	joins := s.Requests(bridge.JoinRoom)
	require.Len(t, joins, 1)
	var params bridge.JoinParams
	require.NoError(t, joins[0].Decode(&params))
	assert.Equal(t, map[string]any{"name": "ada"}, params.UserPayload)
	assert.Equal(t, room.SessionID(), params.Session)
	assert.Equal(t, string(config.RegionCNHangzhou), params.Region)
	assert.True(t, params.DisableNewPencil)
}

func TestJoinRefusedByEngine(t *testing.T) {
	s := startEngine(t)
	// Readers may not join as writers.
	room := newRoom(t, s, token.RoleReader)

	var disconnects recorder[error]
	room.AddDisconnectListener(disconnects.add)

	_, err := awaitErr(t, room.Joined())
	assert.ErrorIs(t, err, constants.ErrAuthorization)

	await(t, room.Closed())
	assert.Equal(t, phase.Disconnected, room.Phase())
	require.Len(t, disconnects.all(), 1)
	assert.ErrorIs(t, disconnects.all()[0], constants.ErrAuthorization)
}

func TestJoinTimeout(t *testing.T) {
	s := startEngine(t)
	s.Hold(bridge.JoinRoom)
	room := newRoom(t, s, token.RoleWriter, config.WithTimeout(200*time.Millisecond))

	_, err := awaitErr(t, room.Joined())
	assert.ErrorIs(t, err, constants.ErrConnectionTimeout)
	assert.Contains(t, err.Error(), "join exceeded 200 ms")
	await(t, room.Closed())
	assert.Equal(t, phase.Disconnected, room.Phase())
}

func TestPhaseEventOrder(t *testing.T) {
	s := startEngine(t)
	s.Hold(bridge.JoinRoom)
	room := newRoom(t, s, token.RoleWriter)

	var changes recorder[phase.Change]
	room.AddPhaseListener(changes.add)
	s.Release(bridge.JoinRoom)
	await(t, room.Joined())

	await(t, room.Disconnect())
	assert.Equal(t, phase.Disconnected, room.Phase())

	want := []phase.Change{
		{From: phase.Connecting, To: phase.Connected},
		{From: phase.Connected, To: phase.Disconnecting},
		{From: phase.Disconnecting, To: phase.Disconnected},
	}
	assert.Empty(t, cmp.Diff(want, changes.all()))
}

func TestDisconnectIsIdempotent(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	first := room.Disconnect()
	second := room.Disconnect()
	assert.Same(t, first, second)
	await(t, first)

	third := room.Disconnect()
	select {
	case <-third.Done():
	default:
		t.Fatal("disconnecting a closed room must resolve immediately")
	}

	_, err := awaitErr(t, room.MoveCamera(camera.Config{Scale: camera.Float(2)}))
	assert.ErrorIs(t, err, constants.ErrCancelled)

	require.Eventually(t, func() bool { return len(s.Requests(bridge.LeaveRoom)) == 1 }, waitFor, tick)
}

func TestDisconnectCancelsPendingSnapshot(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	s.Hold(bridge.GetSceneSnapshotImage)
	snapshot := room.GetSceneSnapshotImage("/init", 0, 0)
	require.Eventually(t, func() bool { return s.HeldCount(bridge.GetSceneSnapshotImage) == 1 }, waitFor, tick)

	seen := make(chan phase.Phase, 1)
	snapshot.Then(func(*imageservice.Image, error) { seen <- room.Phase() })

	closed := room.Disconnect()
	img, err := awaitErr(t, snapshot)
	assert.Nil(t, img)
	assert.ErrorIs(t, err, constants.ErrCancelled)

	select {
	case p := <-seen:
		assert.True(t, p.Terminating(), "the phase change comes before cancelled futures")
	case <-time.After(waitFor):
		t.Fatal("callback did not run")
	}
	await(t, closed)

	_, err = awaitErr(t, room.GetSceneSnapshotImage("/init", 0, 0))
	assert.ErrorIs(t, err, constants.ErrCancelled)
}

func TestReconnectTimeout(t *testing.T) {
	s := startEngine(t)
	cfg, err := config.NewRoom(roomID, s.Token(roomID, token.RoleWriter), config.WithTimeout(400*time.Millisecond))
	require.NoError(t, err)
	room, err := whiteboard.Connect(context.Background(), cfg,
		sessionOptions(s, whiteboard.WithRetryer(bridge.NewFixedDelay(20*time.Millisecond, 0)))...)
	require.NoError(t, err)
	await(t, room.Joined())

	var changes recorder[phase.Change]
	var disconnects recorder[error]
	room.AddPhaseListener(changes.add)
	room.AddDisconnectListener(disconnects.add)

	s.RefuseConnections(true)
	s.DropConnections()

	await(t, room.Closed())
	assert.Equal(t, phase.Disconnected, room.Phase())

	require.Len(t, disconnects.all(), 1)
	err = disconnects.all()[0]
	assert.ErrorIs(t, err, constants.ErrConnectionTimeout)
	assert.Contains(t, err.Error(), "reconnect exceeded 400 ms")

	got := changes.all()
	require.Len(t, got, 2)
	assert.Equal(t, phase.Reconnecting, got[0].To)
	assert.ErrorIs(t, got[0].Cause, constants.ErrConnectionLost)
	assert.Equal(t, phase.Disconnected, got[1].To)
	assert.ErrorIs(t, got[1].Cause, constants.ErrConnectionTimeout)
}

func TestReconnectRestoresSubscriptions(t *testing.T) {
	s := startEngine(t)
	cfg, err := config.NewRoom(roomID, s.Token(roomID, token.RoleWriter))
	require.NoError(t, err)
	room, err := whiteboard.Connect(context.Background(), cfg,
		sessionOptions(s, whiteboard.WithRetryer(bridge.NewFixedDelay(20*time.Millisecond, 0)))...)
	require.NoError(t, err)
	defer await(t, room.Disconnect())
	await(t, room.Joined())

	var pings recorder[events.Event]
	await(t, room.AddMagixEventListener("ping", pings.add))

	reconnected := make(chan struct{}, 1)
	room.AddPhaseListener(func(c phase.Change) {
		if c.From == phase.Reconnecting && c.To == phase.Connected {
			reconnected <- struct{}{}
		}
	})

	s.DropConnections()
	select {
	case <-reconnected:
	case <-time.After(waitFor):
		t.Fatal("room did not reconnect")
	}
	assert.Equal(t, phase.Connected, room.Phase())

	joins := s.Requests(bridge.JoinRoom)
	require.Len(t, joins, 2)
	var params bridge.JoinParams
	require.NoError(t, joins[1].Decode(&params))
	assert.Equal(t, []bridge.ListenerParams{{Name: "ping"}}, params.Listeners)

	sender := joinRoom(t, s, token.RoleWriter)
	await(t, sender.DispatchMagixEvent("ping", "hello"))
	require.Eventually(t, func() bool { return pings.len() == 1 }, waitFor, tick)
	assert.Equal(t, "hello", pings.all()[0].Payload)
}

func TestEngineReportedReconnectRejoins(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	var changes recorder[phase.Change]
	room.AddPhaseListener(changes.add)

	s.Push(roomID, bridge.PhaseChanged, bridge.PhasePayload{Phase: "reconnecting"})
	require.Eventually(t, func() bool { return changes.len() == 2 }, waitFor, tick)

	got := changes.all()
	assert.Equal(t, phase.Change{From: phase.Connected, To: phase.Reconnecting}, phase.Change{From: got[0].From, To: got[0].To})
	assert.ErrorIs(t, got[0].Cause, constants.ErrConnectionLost)
	assert.Equal(t, phase.Change{From: phase.Reconnecting, To: phase.Connected}, got[1])
	assert.Len(t, s.Requests(bridge.JoinRoom), 2)
}

func TestEngineReportedReconnectTimesOut(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter, config.WithTimeout(200*time.Millisecond))

	var disconnects recorder[error]
	room.AddDisconnectListener(disconnects.add)

	s.Hold(bridge.JoinRoom)
	s.Push(roomID, bridge.PhaseChanged, bridge.PhasePayload{Phase: "reconnecting"})
	await(t, room.Closed())

	assert.Equal(t, phase.Disconnected, room.Phase())
	require.Len(t, disconnects.all(), 1)
	assert.ErrorIs(t, disconnects.all()[0], constants.ErrConnectionTimeout)
	assert.Contains(t, disconnects.all()[0].Error(), "reconnect exceeded 200 ms")
}

func TestGestureBlockedWhileMoveCameraSucceeds(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter, config.WithDisableCameraTransform(true))
	assert.True(t, room.CameraTransformDisabled())

	before := room.Camera()
	state, ok := room.HandleGesture(camera.Gesture{DX: 50, DY: 20})
	assert.False(t, ok)
	assert.Equal(t, before, state)
	assert.Equal(t, before, room.Camera())

	moved := await(t, room.MoveCamera(camera.Config{CenterX: camera.Float(10), Scale: camera.Float(2)}))
	assert.Equal(t, camera.State{CenterX: 10, Scale: 2}, moved)
	assert.Equal(t, moved, room.Camera())
	assert.Equal(t, 2.0, s.Camera(roomID).Scale)

	await(t, room.DisableCameraTransform(false))
	state, ok = room.HandleGesture(camera.Gesture{DX: 20})
	assert.True(t, ok)
	assert.InDelta(t, 0, state.CenterX, 1e-9, "a 20 unit pan at scale 2 moves the center by 10")
	require.Eventually(t, func() bool { return s.Camera(roomID).CenterX == state.CenterX }, waitFor, tick)
}

func TestDisableCameraTransformGatesGesturesRightAway(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	s.Hold(bridge.DisableCameraTransform)
	disabled := room.DisableCameraTransform(true)
	assert.True(t, room.CameraTransformDisabled())

	before := room.Camera()
	_, ok := room.HandleGesture(camera.Gesture{DX: 40})
	assert.False(t, ok, "gestures are blocked before the engine answers")
	assert.Equal(t, before, room.Camera())

	s.Release(bridge.DisableCameraTransform)
	await(t, disabled)
	assert.True(t, room.CameraTransformDisabled())
}

func TestGestureAfterDisconnect(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	var cams recorder[camera.State]
	room.AddCameraListener(cams.add)
	await(t, room.Disconnect())

	before := room.Camera()
	state, ok := room.HandleGesture(camera.Gesture{DX: 40, Factor: 2})
	assert.False(t, ok)
	assert.Equal(t, before, state)
	assert.Equal(t, before, room.Camera())
	assert.Zero(t, cams.len())
}

func TestCameraBoundIsACopy(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	await(t, room.SetCameraBound(&camera.Bound{
		MinScale: 0.5,
		MaxScale: 4,
		Rect:     &camera.Rectangle{OriginX: -100, OriginY: -100, Width: 200, Height: 200},
	}))
	b := room.CameraBound()
	b.Rect.Width = 1e6
	b.Rect.OriginX = 1000
	b.MaxScale = 100

	got := room.CameraBound()
	assert.Equal(t, camera.Rectangle{OriginX: -100, OriginY: -100, Width: 200, Height: 200}, *got.Rect)
	assert.Equal(t, 4.0, got.MaxScale)
}

func TestCameraCommands(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	var cams recorder[camera.State]
	room.AddCameraListener(cams.add)

	_, err := awaitErr(t, room.MoveCamera(camera.Config{Scale: camera.Float(0)}))
	assert.ErrorIs(t, err, constants.ErrInvalidConfig)

	bounded := await(t, room.SetCameraBound(&camera.Bound{MinScale: 0.5, MaxScale: 2}))
	assert.Equal(t, 1.0, bounded.Scale)
	moved := await(t, room.MoveCamera(camera.Config{Scale: camera.Float(5)}))
	assert.Equal(t, 2.0, moved.Scale)

	fitted := await(t, room.MoveCameraToContainer(camera.Rectangle{OriginX: -400, OriginY: -300, Width: 1600, Height: 1200}))
	assert.Equal(t, 0.5, fitted.Scale)

	_, err = awaitErr(t, room.MoveCameraToContainer(camera.Rectangle{}))
	assert.ErrorIs(t, err, constants.ErrInvalidConfig)

	await(t, room.SetCameraBound(nil))
	assert.Nil(t, room.CameraBound())
	require.Eventually(t, func() bool { return cams.len() == 4 }, waitFor, tick)
}

func TestConvertPoints(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	assert.Equal(t, camera.Point{}, room.ConvertToPointInWorld(camera.Point{X: 400, Y: 300}))
	assert.Equal(t, camera.Point{X: -400, Y: -300}, room.ConvertToPointInWorld(camera.Point{}))

	await(t, room.MoveCamera(camera.Config{CenterX: camera.Float(100), Scale: camera.Float(2)}))
	world := room.ConvertToPointInWorld(camera.Point{X: 500, Y: 300})
	assert.InDelta(t, 150, world.X, 1e-9)
	assert.InDelta(t, 0, world.Y, 1e-9)

	view := room.ConvertToPointInView(world)
	assert.InDelta(t, 500, view.X, 1e-9)
	assert.InDelta(t, 300, view.Y, 1e-9)

	await(t, room.RefreshViewSize(400, 300))
	assert.Equal(t, camera.Point{X: 100}, room.ConvertToPointInWorld(camera.Point{X: 200, Y: 150}))
	assert.Len(t, s.Requests(bridge.RefreshViewSize), 1)
}

func TestScaleToFit(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	assert.False(t, await(t, room.ScalePptToFit(camera.AnimationImmediately)), "the initial scene has no slide")
	assert.False(t, await(t, room.ScaleIframeToFit()))
	assert.Empty(t, s.Requests(bridge.ScaleToFit))

	await(t, room.SetScenePath("/ppt/1"))
	assert.True(t, await(t, room.ScalePptToFit(camera.AnimationContinuous)))
	// 960x540 into 800x600 is limited by the width.
	assert.InDelta(t, 800.0/960.0, room.Camera().Scale, 1e-9)

	first := room.Camera()
	assert.True(t, await(t, room.ScalePptToFit(camera.AnimationContinuous)))
	assert.Equal(t, first, room.Camera())
	assert.Len(t, s.Requests(bridge.ScaleToFit), 2)
}

func TestSceneCommands(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	snapshot := room.GetEntireScenes()

	await(t, room.PutScenes("/notes", []scenes.Scene{{Name: "a"}, {Name: "b"}}, 0))
	pt, err := room.GetScenePathType("/notes/b")
	require.NoError(t, err)
	assert.Equal(t, scenes.Page, pt)
	assert.NotContains(t, snapshot, "/notes", "snapshots are not affected by later changes")

	await(t, room.RemoveScenes("/notes/a"))
	pt, err = room.GetScenePathType("/notes/a")
	require.NoError(t, err)
	assert.Equal(t, scenes.Empty, pt)

	entire := await(t, room.FetchEntireScenes())
	assert.Empty(t, cmp.Diff(s.Scenes(roomID), entire))
	assert.Empty(t, cmp.Diff(entire, room.GetEntireScenes()))

	_, err = awaitErr(t, room.SetScenePath("/nope/x"))
	assert.ErrorIs(t, err, constants.ErrInvalidPath)

	invalid := room.SetScenePath("relative")
	select {
	case <-invalid.Done():
	default:
		t.Fatal("an invalid path must be rejected synchronously")
	}
	_, err = invalid.Result()
	assert.ErrorIs(t, err, constants.ErrInvalidPath)

	for _, name := range []string{"", "..", "b/c"} {
		_, err = awaitErr(t, room.PutScenes("/", []scenes.Scene{{Name: name}}, 0))
		assert.ErrorIs(t, err, constants.ErrInvalidPath, "name %q", name)
	}
	assert.Len(t, s.Requests(bridge.PutScenes), 1, "bad names never reach the engine")

	await(t, room.RemoveScenes("/"))
	pt, err = room.GetScenePathType("/")
	require.NoError(t, err)
	assert.Equal(t, scenes.Empty, pt)
}

func TestSceneListener(t *testing.T) {
	s := startEngine(t)
	watcher := joinRoom(t, s, token.RoleWriter)
	presenter := joinRoom(t, s, token.RoleWriter)

	var states recorder[scenes.State]
	watcher.AddSceneListener(states.add)

	await(t, presenter.SetScenePath("/ppt/1"))
	require.Eventually(t, func() bool { return states.len() >= 1 }, waitFor, tick)
	assert.Equal(t, "/ppt/1", states.all()[0].ScenePath)
	assert.Equal(t, "/ppt/1", watcher.SceneState().ScenePath)

	await(t, presenter.PutScenes("/", []scenes.Scene{{Name: "extra"}}, 5))
	require.Eventually(t, func() bool {
		pt, _ := watcher.GetScenePathType("/extra")
		return pt == scenes.Page
	}, waitFor, tick)
}

func TestRemoveListener(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	var cams recorder[camera.State]
	id := room.AddCameraListener(cams.add)
	assert.True(t, room.RemoveListener(id))
	assert.False(t, room.RemoveListener(id))

	await(t, room.MoveCamera(camera.Config{Scale: camera.Float(2)}))
	await(t, room.MoveCamera(camera.Config{Scale: camera.Float(3)}))
	assert.Zero(t, cams.len())
}

func TestMagixEvents(t *testing.T) {
	s := startEngine(t)
	listener := joinRoom(t, s, token.RoleWriter)
	sender := joinRoom(t, s, token.RoleWriter)
	reader := joinRoom(t, s, token.RoleReader, config.WithWritable(false))

	var chat recorder[events.Event]
	await(t, listener.AddMagixEventListener("chat", chat.add))

	await(t, sender.DispatchMagixEvent("chat", map[string]any{"text": "hi"}))
	require.Eventually(t, func() bool { return chat.len() == 1 }, waitFor, tick)
	got := chat.all()[0]
	assert.Equal(t, "chat", got.Name)
	assert.Equal(t, sender.ObserverID(), got.AuthorID)
	assert.Equal(t, map[string]any{"text": "hi"}, got.Payload)

	_, err := awaitErr(t, reader.DispatchMagixEvent("chat", "nope"))
	assert.ErrorIs(t, err, constants.ErrAuthorization)

	await(t, listener.RemoveMagixEventListener("chat"))
	await(t, sender.DispatchMagixEvent("chat", "unheard"))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, chat.len())
}

func TestHighFrequencyEvents(t *testing.T) {
	s := startEngine(t)
	listener := joinRoom(t, s, token.RoleWriter)
	sender := joinRoom(t, s, token.RoleWriter)

	var batches recorder[[]events.Event]
	interval, added := listener.AddHighFrequencyEventListener("cursor", 100*time.Millisecond, batches.add)
	assert.Equal(t, constants.MinHighFrequencyInterval, interval)
	await(t, added)

	adds := s.Requests(bridge.AddMagixEventListener)
	require.Len(t, adds, 1)
	var params bridge.ListenerParams
	require.NoError(t, adds[0].Decode(&params))
	assert.Equal(t, int64(500), params.IntervalMs)

	for i := 0; i < 3; i++ {
		await(t, sender.DispatchMagixEvent("cursor", i))
	}

	total := func() int {
		n := 0
		for _, b := range batches.all() {
			n += len(b)
		}
		return n
	}
	require.Eventually(t, func() bool { return total() == 3 }, waitFor, tick)
	assert.LessOrEqual(t, batches.len(), 3)
}

func TestSetWritable(t *testing.T) {
	s := startEngine(t)
	reader := joinRoom(t, s, token.RoleReader, config.WithWritable(false))
	assert.False(t, reader.Writable())

	_, err := awaitErr(t, reader.SetWritable(true))
	assert.ErrorIs(t, err, constants.ErrAuthorization)
	assert.False(t, reader.Writable())

	writer := joinRoom(t, s, token.RoleWriter)
	assert.False(t, await(t, writer.SetWritable(false)))
	assert.False(t, writer.Writable())
	assert.True(t, await(t, writer.SetWritable(true)))

	await(t, writer.DisableDeviceInputs(true))
	assert.True(t, writer.DeviceInputsDisabled())
}

func TestBackgroundAndIframe(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	red := color.RGBA{R: 0xff, A: 0xff}
	await(t, room.SetBackgroundColor(red))
	assert.Equal(t, red, room.BackgroundColor())
	assert.Equal(t, "#ff0000ff", s.Background(roomID))

	await(t, room.PostIframeMessage(map[string]any{"page": 2}))
	assert.Len(t, s.Requests(bridge.PostIframeMessage), 1)

	s.Push(roomID, bridge.IframeBounds, camera.Rectangle{OriginX: -100, OriginY: -50, Width: 200, Height: 100})
	require.Eventually(t, func() bool {
		ok, err := room.ScaleIframeToFit().Await(context.Background())
		return err == nil && ok
	}, waitFor, tick)
}

func TestImages(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	preview := await(t, room.GetScenePreviewImage("/init", 32, 18))
	require.NotNil(t, preview)
	assert.Equal(t, "image/png", preview.ContentType)
	decoded, err := preview.Decode()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 18), decoded.Bounds())

	missing, err := awaitErr(t, room.GetScenePreviewImage("/ppt", 0, 0))
	assert.NoError(t, err, "a directory has no preview")
	assert.Nil(t, missing)

	snapshot := await(t, room.GetSceneSnapshotImage("/init", 0, 0))
	require.NotNil(t, snapshot)

	s.SetSnapshotSupported(false)
	_, err = awaitErr(t, room.GetSceneSnapshotImage("/init", 0, 0))
	assert.ErrorIs(t, err, constants.ErrUnsupportedOperation)

	_, err = awaitErr(t, room.GetSceneSnapshotImage("init", 0, 0))
	assert.ErrorIs(t, err, constants.ErrInvalidPath)
}

func TestKicked(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	var disconnects recorder[error]
	room.AddDisconnectListener(disconnects.add)

	s.Kick(roomID, "room closed by host")
	await(t, room.Closed())

	assert.Equal(t, phase.Disconnected, room.Phase())
	require.Len(t, disconnects.all(), 1)
	assert.ErrorIs(t, disconnects.all()[0], constants.ErrConnectionLost)
	assert.Contains(t, disconnects.all()[0].Error(), "room closed by host")
	assert.Empty(t, s.Requests(bridge.LeaveRoom), "a kicked member does not leave")
}

func TestKickedWithUnreadableReason(t *testing.T) {
	s := startEngine(t)
	room := joinRoom(t, s, token.RoleWriter)

	var disconnects recorder[error]
	room.AddDisconnectListener(disconnects.add)

	s.Push(roomID, bridge.Kicked, "not a kick payload")
	await(t, room.Closed())

	assert.Equal(t, phase.Disconnected, room.Phase())
	require.Len(t, disconnects.all(), 1)
	assert.ErrorIs(t, disconnects.all()[0], constants.ErrConnectionLost)
}
