// Package scenes mirrors the scene set of a whiteboard session and answers
// path queries against it.
//
// Scenes live in directories. A directory path maps to its ordered list
// of scenes; the page path of a scene is its directory joined with its
// name. Directories are implicit: one exists while a page or a nested
// directory exists below it.
package scenes

import (
	"fmt"
	"strings"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/camera"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
)

const Root = "/"

type PathType int

const (
	Empty PathType = iota
	Page
	Dir
)

func (t PathType) String() string {
	switch t {
	case Empty:
		return "empty"
	case Page:
		return "page"
	case Dir:
		return "dir"
	}
	return fmt.Sprintf("PathType(%d)", int(t))
}

// Ppt is the slide attached to a scene.
type Ppt struct {
	Src        string  `json:"src" cbor:"src"`
	Width      float64 `json:"width" cbor:"width"`
	Height     float64 `json:"height" cbor:"height"`
	PreviewURL string  `json:"previewURL,omitempty" cbor:"previewURL,omitempty"`
}

// Region is the world rectangle the slide covers. Slides are centered on
// the world origin.
func (p *Ppt) Region() camera.Rectangle {
	return camera.Rectangle{
		OriginX: -p.Width / 2,
		OriginY: -p.Height / 2,
		Width:   p.Width,
		Height:  p.Height,
	}
}

type Scene struct {
	Name            string `json:"name" cbor:"name"`
	ComponentsCount int    `json:"componentsCount" cbor:"componentsCount"`
	Ppt             *Ppt   `json:"ppt,omitempty" cbor:"ppt,omitempty"`
}

func (s Scene) clone() Scene {
	if s.Ppt != nil {
		p := *s.Ppt
		s.Ppt = &p
	}
	return s
}

func cloneScenes(in []Scene) []Scene {
	out := make([]Scene, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}

// State is the scene the session currently shows.
type State struct {
	ScenePath string  `json:"scenePath" cbor:"scenePath"`
	Index     int     `json:"index" cbor:"index"`
	Scenes    []Scene `json:"scenes" cbor:"scenes"`
}

// Current returns the scene at Index, if any.
func (s State) Current() (Scene, bool) {
	if s.Index < 0 || s.Index >= len(s.Scenes) {
		return Scene{}, false
	}
	return s.Scenes[s.Index], true
}

// ValidatePath checks that p is an absolute, clean scene path.
func ValidatePath(p string) error {
	if p == Root {
		return nil
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: %q is not absolute", constants.ErrInvalidPath, p)
	}
	if strings.HasSuffix(p, "/") {
		return fmt.Errorf("%w: %q has a trailing slash", constants.ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p[1:], "/") {
		switch seg {
		case "":
			return fmt.Errorf("%w: %q has an empty segment", constants.ErrInvalidPath, p)
		case ".", "..":
			return fmt.Errorf("%w: %q has a relative segment", constants.ErrInvalidPath, p)
		}
	}
	return nil
}

// ValidateName checks that name can be the last segment of a page path.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty scene name", constants.ErrInvalidPath)
	case name == "." || name == "..":
		return fmt.Errorf("%w: scene name %q is relative", constants.ErrInvalidPath, name)
	case strings.Contains(name, "/"):
		return fmt.Errorf("%w: scene name %q contains a slash", constants.ErrInvalidPath, name)
	}
	return nil
}

// ValidateNames runs ValidateName over list.
func ValidateNames(list []Scene) error {
	for _, s := range list {
		if err := ValidateName(s.Name); err != nil {
			return err
		}
	}
	return nil
}

// uniqueScenes validates the names of list and copies it, keeping only the
// last scene of each name, at that scene's position.
func uniqueScenes(list []Scene) ([]Scene, error) {
	if err := ValidateNames(list); err != nil {
		return nil, err
	}
	last := make(map[string]int, len(list))
	for i, s := range list {
		last[s.Name] = i
	}
	out := make([]Scene, 0, len(last))
	for i, s := range list {
		if last[s.Name] == i {
			out = append(out, s.clone())
		}
	}
	return out, nil
}

// Split returns the directory and name of a page path.
func Split(p string) (dir, name string) {
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return Root, p[i+1:]
	}
	return p[:i], p[i+1:]
}

// Join returns the page path of the scene name in dir.
func Join(dir, name string) string {
	if dir == Root {
		return Root + name
	}
	return dir + "/" + name
}

// isBelow reports whether path is strictly inside dir.
func isBelow(path, dir string) bool {
	if dir == Root {
		return path != Root
	}
	return strings.HasPrefix(path, dir+"/")
}
