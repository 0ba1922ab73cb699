package imageservice

import (
	"context"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/bridge"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
)

// BridgeService asks the engine to render images over the bridge.
type BridgeService struct {
	conn   func() (bridge.Conn, error)
	logger logger.Logger
}

// NewBridgeService renders through whatever connection conn returns at
// call time, so reconnects are picked up.
func NewBridgeService(conn func() (bridge.Conn, error), log logger.Logger) *BridgeService {
	if log == nil {
		log = logger.Nop()
	}
	return &BridgeService{conn: conn, logger: log}
}

func (s *BridgeService) Preview(ctx context.Context, req Request) (*Image, error) {
	img, err := s.fetch(ctx, bridge.GetScenePreviewImage, req)
	if err != nil {
		if cancelled(ctx, err) {
			return nil, cancellation(err)
		}
		s.logger.Warn("scene preview unavailable", "path", req.Path, "error", err)
		return nil, nil
	}
	return img, nil
}

func (s *BridgeService) Snapshot(ctx context.Context, req Request) (*Image, error) {
	img, err := s.fetch(ctx, bridge.GetSceneSnapshotImage, req)
	if err != nil && cancelled(ctx, err) {
		return nil, cancellation(err)
	}
	return img, err
}

func (s *BridgeService) fetch(ctx context.Context, method bridge.Method, req Request) (*Image, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	res, err := bridge.Call[bridge.ImageResult](ctx, conn, method, bridge.ImageParams{
		Path:   req.Path,
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		return nil, err
	}
	return &Image{ContentType: res.ContentType, Data: res.Data}, nil
}
