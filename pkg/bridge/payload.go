package bridge

import (
	"github.com/whiteboard-sdk/whiteboard.go/pkg/camera"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
)

// ListenerParams restores or registers a custom event listener.
type ListenerParams struct {
	Name       string `json:"name" cbor:"name"`
	IntervalMs int64  `json:"intervalMs,omitempty" cbor:"intervalMs,omitempty"`
}

type JoinParams struct {
	UUID                   string           `json:"uuid" cbor:"uuid"`
	Token                  string           `json:"roomToken" cbor:"roomToken"`
	Region                 string           `json:"region" cbor:"region"`
	Session                string           `json:"session" cbor:"session"`
	Writable               bool             `json:"isWritable" cbor:"isWritable"`
	DisableDeviceInputs    bool             `json:"disableDeviceInputs" cbor:"disableDeviceInputs"`
	DisableCameraTransform bool             `json:"disableCameraTransform" cbor:"disableCameraTransform"`
	DisableEraseImage      bool             `json:"disableEraseImage" cbor:"disableEraseImage"`
	DisableBezier          bool             `json:"disableBezier" cbor:"disableBezier"`
	DisableNewPencil       bool             `json:"disableNewPencil" cbor:"disableNewPencil"`
	CameraBound            *camera.Bound    `json:"cameraBound,omitempty" cbor:"cameraBound,omitempty"`
	UserPayload            any              `json:"userPayload,omitempty" cbor:"userPayload,omitempty"`
	Listeners              []ListenerParams `json:"listeners,omitempty" cbor:"listeners,omitempty"`
}

type ReplayParams struct {
	UUID        string           `json:"uuid" cbor:"uuid"`
	Token       string           `json:"roomToken" cbor:"roomToken"`
	Region      string           `json:"region" cbor:"region"`
	Session     string           `json:"session" cbor:"session"`
	BeginMs     int64            `json:"beginTimestamp,omitempty" cbor:"beginTimestamp,omitempty"`
	DurationMs  int64            `json:"duration,omitempty" cbor:"duration,omitempty"`
	CameraBound *camera.Bound    `json:"cameraBound,omitempty" cbor:"cameraBound,omitempty"`
	Listeners   []ListenerParams `json:"listeners,omitempty" cbor:"listeners,omitempty"`
}

// JoinResult is the room state the engine answers a join or replay with.
type JoinResult struct {
	ObserverID      int64                     `json:"observerId" cbor:"observerId"`
	Writable        bool                      `json:"isWritable" cbor:"isWritable"`
	ScenePath       string                    `json:"scenePath" cbor:"scenePath"`
	Scenes          map[string][]scenes.Scene `json:"scenes" cbor:"scenes"`
	Camera          camera.State              `json:"camera" cbor:"camera"`
	BackgroundColor string                    `json:"backgroundColor,omitempty" cbor:"backgroundColor,omitempty"`

	// Replays only.
	DurationMs  int64  `json:"duration,omitempty" cbor:"duration,omitempty"`
	PlayerPhase string `json:"playerPhase,omitempty" cbor:"playerPhase,omitempty"`
}

type PathParams struct {
	Path string `json:"path" cbor:"path"`
}

type PutScenesParams struct {
	Dir    string         `json:"dir" cbor:"dir"`
	Scenes []scenes.Scene `json:"scenes" cbor:"scenes"`
	Index  int            `json:"index" cbor:"index"`
}

type FlagParams struct {
	Value bool `json:"value" cbor:"value"`
}

type ColorParams struct {
	Color string `json:"color" cbor:"color"`
}

type MagixParams struct {
	Name    string `json:"event" cbor:"event"`
	Payload any    `json:"payload,omitempty" cbor:"payload,omitempty"`
}

type ScaleToFitParams struct {
	Region string               `json:"region" cbor:"region"`
	Mode   camera.AnimationMode `json:"animationMode,omitempty" cbor:"animationMode,omitempty"`
}

type ViewSizeParams struct {
	Width  float64 `json:"width" cbor:"width"`
	Height float64 `json:"height" cbor:"height"`
}

type IframeParams struct {
	Payload any `json:"payload" cbor:"payload"`
}

type ImageParams struct {
	Path   string `json:"path" cbor:"path"`
	Width  int    `json:"width,omitempty" cbor:"width,omitempty"`
	Height int    `json:"height,omitempty" cbor:"height,omitempty"`
}

type ImageResult struct {
	ContentType string `json:"contentType" cbor:"contentType"`
	Data        []byte `json:"data" cbor:"data"`
}

type SeekParams struct {
	Ms int64 `json:"scheduleTime" cbor:"scheduleTime"`
}

type SpeedParams struct {
	Speed float64 `json:"speed" cbor:"speed"`
}

type PhasePayload struct {
	Phase string `json:"phase" cbor:"phase"`
}

type SceneStatePayload struct {
	ScenePath string `json:"scenePath" cbor:"scenePath"`
}

type ScenesPayload struct {
	Scenes    map[string][]scenes.Scene `json:"scenes" cbor:"scenes"`
	ScenePath string                    `json:"scenePath" cbor:"scenePath"`
}

type ScheduleTimePayload struct {
	Ms int64 `json:"scheduleTime" cbor:"scheduleTime"`
}

type KickedPayload struct {
	Reason string `json:"reason" cbor:"reason"`
}
