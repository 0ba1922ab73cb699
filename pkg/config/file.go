package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/camera"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

// File is the YAML document the command line tool reads.
type File struct {
	Endpoint     string         `yaml:"endpoint"`
	ImageService string         `yaml:"image_service"`
	Codec        string         `yaml:"codec"`
	LogLevel     string         `yaml:"log_level"`
	Room         RoomSection    `yaml:"room"`
	Replay       *ReplaySection `yaml:"replay"`
}

type RoomSection struct {
	UUID                   string         `yaml:"uuid"`
	Token                  string         `yaml:"token"`
	Region                 Region         `yaml:"region"`
	Writable               bool           `yaml:"writable"`
	DisableDeviceInputs    bool           `yaml:"disable_device_inputs"`
	DisableCameraTransform bool           `yaml:"disable_camera_transform"`
	DisableEraseImage      bool           `yaml:"disable_erase_image"`
	DisableBezier          bool           `yaml:"disable_bezier"`
	DisableNewPencil       bool           `yaml:"disable_new_pencil"`
	Timeout                time.Duration  `yaml:"timeout"`
	CameraBound            *camera.Bound  `yaml:"camera_bound"`
	UserPayload            map[string]any `yaml:"user_payload"`
}

type ReplaySection struct {
	Begin    time.Time     `yaml:"begin"`
	Duration time.Duration `yaml:"duration"`
}

// DefaultFile describes a read-write room in cn-hz over CBOR.
func DefaultFile() *File {
	return &File{
		Codec:    "cbor",
		LogLevel: "info",
		Room: RoomSection{
			Region:           RegionCNHangzhou,
			Writable:         true,
			DisableNewPencil: true,
			Timeout:          constants.DefaultTimeout,
		},
	}
}

// Load reads path over DefaultFile.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	f := DefaultFile()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", constants.ErrInvalidConfig, path, err)
	}
	return f, nil
}

func (f *File) options() []Option {
	r := f.Room
	opts := []Option{
		WithRegion(r.Region),
		WithWritable(r.Writable),
		WithDisableDeviceInputs(r.DisableDeviceInputs),
		WithDisableCameraTransform(r.DisableCameraTransform),
		WithDisableEraseImage(r.DisableEraseImage),
		WithDisableBezier(r.DisableBezier),
		WithDisableNewPencil(r.DisableNewPencil),
		WithTimeout(r.Timeout),
	}
	if r.CameraBound != nil {
		opts = append(opts, WithCameraBound(*r.CameraBound))
	}
	if r.UserPayload != nil {
		opts = append(opts, WithUserPayload(r.UserPayload))
	}
	return opts
}

// RoomConfig builds the live room configuration described by the file.
func (f *File) RoomConfig(extra ...Option) (*RoomConfig, error) {
	return NewRoom(f.Room.UUID, f.Room.Token, append(f.options(), extra...)...)
}

// PlayerConfig builds the replay configuration described by the file.
func (f *File) PlayerConfig(extra ...Option) (*PlayerConfig, error) {
	opts := f.options()
	if f.Replay != nil {
		opts = append(opts, WithBeginTime(f.Replay.Begin), WithDuration(f.Replay.Duration))
	}
	return NewPlayer(f.Room.UUID, f.Room.Token, append(opts, extra...)...)
}
