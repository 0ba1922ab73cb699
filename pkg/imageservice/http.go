package imageservice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/whiteboard-sdk/whiteboard.go/pkg/constants"
	"github.com/whiteboard-sdk/whiteboard.go/pkg/logger"
)

const maxImageSize = 32 << 20

// HTTPService fetches images from an image server:
//
//	GET {BaseURL}/rooms/{room}/scenes/{preview|snapshot}?path=&width=&height=
//
// Error replies carry a JSON body {"code": int, "message": string}.
type HTTPService struct {
	// BaseURL is the base URL of the image server
	BaseURL string
	// Token is sent as a bearer token when set
	Token string

	// MaxSize caps the image body; larger images fail. Zero means 32 MiB.
	MaxSize int64

	Client *http.Client
	Logger logger.Logger
}

func NewHTTPService(baseURL, token string) *HTTPService {
	return &HTTPService{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  http.DefaultClient,
		Logger:  logger.Nop(),
	}
}

func (s *HTTPService) Preview(ctx context.Context, req Request) (*Image, error) {
	img, err := s.Request(ctx, Preview, req)
	if err != nil {
		if cancelled(ctx, err) {
			return nil, cancellation(err)
		}
		s.Logger.Warn("scene preview unavailable", "path", req.Path, "error", err)
		return nil, nil
	}
	return img, nil
}

func (s *HTTPService) Snapshot(ctx context.Context, req Request) (*Image, error) {
	img, err := s.Request(ctx, Snapshot, req)
	if err != nil && cancelled(ctx, err) {
		return nil, cancellation(err)
	}
	return img, err
}

// Request performs one image fetch and maps error replies to session
// errors.
func (s *HTTPService) Request(ctx context.Context, kind Kind, req Request) (*Image, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("path", req.Path)
	if req.Width > 0 {
		q.Set("width", strconv.Itoa(req.Width))
	}
	if req.Height > 0 {
		q.Set("height", strconv.Itoa(req.Height))
	}
	endpoint := fmt.Sprintf("%s/rooms/%s/scenes/%s?%s", s.BaseURL, url.PathEscape(req.Room), kind, q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "image/png")
	if s.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.Token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := s.MaxSize
	if limit <= 0 {
		limit = maxImageSize
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("image server: %s of %q is larger than %d bytes", kind, req.Path, limit)
	}
	return &Image{ContentType: resp.Header.Get("Content-Type"), Data: body}, nil
}

func statusError(status int, body []byte) error {
	code := int64(status)
	if c, err := jsonparser.GetInt(body, "code"); err == nil {
		code = c
	}
	message, err := jsonparser.GetString(body, "message")
	if err != nil {
		message = http.StatusText(status)
	}

	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", constants.ErrAuthorization, message)
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", constants.ErrInvalidPath, message)
	case http.StatusNotImplemented:
		return fmt.Errorf("%w: %s", constants.ErrUnsupportedOperation, message)
	}
	return fmt.Errorf("image server: status %d: %s", status, message)
}
