package bridge

import (
	"errors"
	"fmt"

	"github.com/whiteboard-sdk/whiteboard.go/internal/codec"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

// Method names a bridge request.
type Method string

const (
	JoinRoom                 Method = "joinRoom"
	LeaveRoom                Method = "leaveRoom"
	ReplayRoom               Method = "replayRoom"
	MoveCamera               Method = "moveCamera"
	MoveCameraToContainer    Method = "moveCameraToContainer"
	ScaleToFit               Method = "scaleToFit"
	SetCameraBound           Method = "setCameraBound"
	DisableCameraTransform   Method = "disableCameraTransform"
	DisableDeviceInputs      Method = "disableDeviceInputs"
	SetWritable              Method = "setWritable"
	SetBackgroundColor       Method = "setBackgroundColor"
	AddMagixEventListener    Method = "addMagixEventListener"
	RemoveMagixEventListener Method = "removeMagixEventListener"
	DispatchMagixEvent       Method = "dispatchMagixEvent"
	GetEntireScenes          Method = "getEntireScenes"
	SetScenePath             Method = "setScenePath"
	PutScenes                Method = "putScenes"
	RemoveScenes             Method = "removeScenes"
	PostIframeMessage        Method = "postIframeMessage"
	RefreshViewSize          Method = "refreshViewSize"
	GetScenePreviewImage     Method = "getScenePreviewImage"
	GetSceneSnapshotImage    Method = "getSceneSnapshotImage"
	Play                     Method = "play"
	Pause                    Method = "pause"
	Stop                     Method = "stop"
	Seek                     Method = "seekToScheduleTime"
	SetPlaybackSpeed         Method = "setPlaybackSpeed"
)

// EventKind names an engine-pushed event.
type EventKind string

const (
	PhaseChanged        EventKind = "phaseChanged"
	SceneStateChanged   EventKind = "sceneStateChanged"
	ScenesChanged       EventKind = "scenesChanged"
	CameraChanged       EventKind = "cameraChanged"
	MagixEvent          EventKind = "magixEvent"
	IframeBounds        EventKind = "iframeBounds"
	PlayerPhaseChanged  EventKind = "playerPhaseChanged"
	ScheduleTimeChanged EventKind = "scheduleTimeChanged"
	Kicked              EventKind = "kicked"
)

// Error codes carried by engine error replies.
const (
	CodeInvalidParams = 400
	CodeAuthorization = 401
	CodeNotFound      = 404
	CodeTimeout       = 408
	CodeInvalidPath   = 422
	CodeInternal      = 500
	CodeUnsupported   = 501
)

// Error is an engine error reply. It unwraps to the session sentinel its
// code stands for, so callers can match it with errors.Is.
type Error struct {
	Code    int    `json:"code" cbor:"code"`
	Message string `json:"message,omitempty" cbor:"message,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeAuthorization:
		return constants.ErrAuthorization
	case CodeNotFound, CodeInvalidPath:
		return constants.ErrInvalidPath
	case CodeTimeout:
		return constants.ErrConnectionTimeout
	case CodeUnsupported:
		return constants.ErrUnsupportedOperation
	}
	return nil
}

// Is matches any other *Error with the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other != nil && other.Code == e.Code
	}
	return false
}

// Request is a command sent to the engine.
type Request struct {
	ID     string `json:"id" cbor:"id"`
	Method Method `json:"method" cbor:"method"`
	Params any    `json:"params,omitempty" cbor:"params,omitempty"`
}

// Event is a push from the engine. Payload is decoded by whoever handles
// the kind, with the Unmarshaler of the connection it arrived on.
type Event struct {
	Kind    EventKind        `json:"event" cbor:"event"`
	Payload codec.RawMessage `json:"payload,omitempty" cbor:"payload,omitempty"`
}

// Frame is the envelope of everything the engine sends: a Response when
// ID is set, an Event when Event is set.
type Frame struct {
	ID      string           `json:"id,omitempty" cbor:"id,omitempty"`
	Error   *Error           `json:"error,omitempty" cbor:"error,omitempty"`
	Result  codec.RawMessage `json:"result,omitempty" cbor:"result,omitempty"`
	Event   EventKind        `json:"event,omitempty" cbor:"event,omitempty"`
	Payload codec.RawMessage `json:"payload,omitempty" cbor:"payload,omitempty"`
}

// Reply is what a pending request resolves with.
type Reply struct {
	Result codec.RawMessage
	Err    error
}
