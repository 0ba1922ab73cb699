// Package imageservice fetches scene preview and snapshot images.
//
// A preview is best effort: when it cannot be produced the result is a nil
// image and a nil error. A snapshot needs an image server that supports
// cross region rendering and reports ErrUnsupportedOperation otherwise.
// Cancellation is always reported as an error.
package imageservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png" // register the PNG decoder for Image.Decode

	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/scenes"
)

type Kind string

const (
	Preview  Kind = "preview"
	Snapshot Kind = "snapshot"
)

// Request names the scene to render.
type Request struct {
	Room   string
	Path   string
	Width  int
	Height int
}

func (r Request) validate() error {
	if err := scenes.ValidatePath(r.Path); err != nil {
		return err
	}
	if r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("%w: negative image size %dx%d", constants.ErrInvalidConfig, r.Width, r.Height)
	}
	return nil
}

// Image is an encoded image as returned by the engine or image server.
type Image struct {
	ContentType string
	Data        []byte
}

// Decode decodes the image bytes.
func (i *Image) Decode() (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(i.Data))
	return img, err
}

type Service interface {
	Preview(ctx context.Context, req Request) (*Image, error)
	Snapshot(ctx context.Context, req Request) (*Image, error)
}

// cancelled reports whether err is a cancellation the caller must see.
func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, constants.ErrCancelled)
}

// cancellation normalizes a cancellation to ErrCancelled.
func cancellation(err error) error {
	if errors.Is(err, constants.ErrCancelled) {
		return err
	}
	return fmt.Errorf("%w: %v", constants.ErrCancelled, err)
}
