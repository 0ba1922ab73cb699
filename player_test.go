package whiteboard_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	whiteboard "github.com/whiteboard-sdk/whiteboard.go"
	"github.com/whiteboard-sdk/whiteboard.go/internal/fakeengine"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/config"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/phase"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/token"
)

func startReplay(t *testing.T, s *fakeengine.Server, opts ...config.Option) *whiteboard.Player {
	t.Helper()
	cfg, err := config.NewPlayer(recordingID, s.Token(recordingID, token.RoleReader), opts...)
	require.NoError(t, err)
	p, err := whiteboard.Replay(context.Background(), cfg, sessionOptions(s)...)
	require.NoError(t, err)
	t.Cleanup(func() { await(t, p.Disconnect()) })
	await(t, p.Ready())
	// The engine reports the first frame right after opening.
	require.Eventually(t, func() bool { return p.PlayerPhase() == phase.Pause }, waitFor, tick)
	return p
}

func TestReplayOpens(t *testing.T) {
	s := startEngine(t)
	p := startReplay(t, s)

	assert.Equal(t, phase.Connected, p.Phase())
	assert.Equal(t, 10*time.Second, p.Duration())
	assert.Zero(t, p.ScheduleTime())
	assert.Equal(t, 1.0, p.PlaybackSpeed())

	pt, err := p.GetScenePathType("/init")
	require.NoError(t, err)
	assert.Equal(t, scenes.Page, pt)
}

func TestReplayParams(t *testing.T) {
	s := startEngine(t)
	begin := time.UnixMilli(1_700_000_000_000)
	p := startReplay(t, s, config.WithBeginTime(begin), config.WithDuration(4*time.Second))

	assert.Equal(t, 4*time.Second, p.Duration())

	opens := s.Requests(bridge.ReplayRoom)
	require.Len(t, opens, 1)
	var params bridge.ReplayParams
	require.NoError(t, opens[0].Decode(&params))
	assert.Equal(t, recordingID, params.UUID)
	assert.Equal(t, int64(1_700_000_000_000), params.BeginMs)
	assert.Equal(t, int64(4000), params.DurationMs)
	assert.Equal(t, p.SessionID(), params.Session)
}

func TestReplayWithoutRecording(t *testing.T) {
	s := startEngine(t)
	cfg, err := config.NewPlayer(roomID, s.Token(roomID, token.RoleReader))
	require.NoError(t, err)
	p, err := whiteboard.Replay(context.Background(), cfg, sessionOptions(s)...)
	require.NoError(t, err)

	_, err = awaitErr(t, p.Ready())
	require.Error(t, err)
	await(t, p.Closed())
	assert.Equal(t, phase.Disconnected, p.Phase())
}

func TestReplayValidation(t *testing.T) {
	s := startEngine(t)

	_, err := whiteboard.Replay(context.Background(), nil, sessionOptions(s)...)
	assert.ErrorIs(t, err, constants.ErrInvalidConfig)

	cfg, err := config.NewPlayer(recordingID, s.Token(roomID, token.RoleReader))
	require.NoError(t, err)
	_, err = whiteboard.Replay(context.Background(), cfg, sessionOptions(s)...)
	assert.ErrorIs(t, err, constants.ErrAuthorization)

	_, err = config.NewPlayer(recordingID, "tok", config.WithDuration(-time.Second))
	assert.ErrorIs(t, err, constants.ErrInvalidConfig)
}

func TestPlayback(t *testing.T) {
	s := startEngine(t)
	p := startReplay(t, s)

	var phases recorder[phase.PlayerPhase]
	var times recorder[time.Duration]
	p.AddPlayerPhaseListener(phases.add)
	p.AddScheduleTimeListener(times.add)

	await(t, p.Play())
	assert.Equal(t, phase.Playing, p.PlayerPhase())

	s.AdvanceReplay(3 * time.Second)
	require.Eventually(t, func() bool { return p.ScheduleTime() == 3*time.Second }, waitFor, tick)

	await(t, p.Pause())
	assert.Equal(t, phase.Pause, p.PlayerPhase())

	require.Eventually(t, func() bool { return phases.len() == 2 }, waitFor, tick)
	assert.Equal(t, []phase.PlayerPhase{phase.Playing, phase.Pause}, phases.all(), "repeated reports of a phase notify once")
	assert.Equal(t, []time.Duration{3 * time.Second}, times.all())
}

func TestPlaybackEnds(t *testing.T) {
	s := startEngine(t)
	p := startReplay(t, s)

	await(t, p.SetPlaybackSpeed(2))
	await(t, p.Play())
	s.AdvanceReplay(6 * time.Second)

	require.Eventually(t, func() bool { return p.PlayerPhase() == phase.Ended }, waitFor, tick)
	assert.Equal(t, 10*time.Second, p.ScheduleTime())

	// An ended replay can be played again from a seek.
	await(t, p.Seek(time.Second))
	await(t, p.Play())
	assert.Equal(t, phase.Playing, p.PlayerPhase())
}

func TestSeek(t *testing.T) {
	s := startEngine(t)
	p := startReplay(t, s)

	// The engine echoes every seek, so settle on the last one.
	await(t, p.Seek(4*time.Second))
	require.Eventually(t, func() bool { return p.ScheduleTime() == 4*time.Second }, waitFor, tick)

	await(t, p.Seek(time.Minute))
	require.Eventually(t, func() bool { return p.ScheduleTime() == 10*time.Second }, waitFor, tick,
		"seeking past the end clamps to the duration")

	_, err := awaitErr(t, p.Seek(-time.Second))
	assert.ErrorIs(t, err, constants.ErrInvalidConfig)
	assert.Equal(t, 10*time.Second, p.ScheduleTime())
}

func TestPlaybackSpeed(t *testing.T) {
	s := startEngine(t)
	p := startReplay(t, s)

	for _, speed := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := awaitErr(t, p.SetPlaybackSpeed(speed))
		assert.ErrorIs(t, err, constants.ErrInvalidConfig, "speed %v", speed)
	}
	assert.Equal(t, 1.0, p.PlaybackSpeed())
	assert.Empty(t, s.Requests(bridge.SetPlaybackSpeed))

	await(t, p.SetPlaybackSpeed(1.5))
	assert.Equal(t, 1.5, p.PlaybackSpeed())
}

func TestStopIsFinal(t *testing.T) {
	s := startEngine(t)
	p := startReplay(t, s)

	await(t, p.Stop())
	assert.Equal(t, phase.Stopped, p.PlayerPhase())

	_, err := awaitErr(t, p.Play())
	assert.ErrorIs(t, err, constants.ErrInvalidTransition)
	_, err = awaitErr(t, p.Stop())
	assert.ErrorIs(t, err, constants.ErrInvalidTransition)
	assert.Len(t, s.Requests(bridge.Stop), 1)

	await(t, p.Disconnect())
	assert.Equal(t, phase.Disconnected, p.Phase())
}
