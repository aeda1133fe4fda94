// Package media forwards listing photos and videos to the image CDN and
// derives BlurHash placeholders for photos.
//
// Uploads are unsigned: the CDN authorizes them through an upload preset, so
// no API secret is held by this service.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/rent-share-backend/internal/config"
)

// Upload errors.
var (
	ErrNotConfigured   = errors.New("media uploads are not configured")
	ErrTooLarge        = errors.New("file exceeds the upload limit")
	ErrUnsupportedType = errors.New("only image and video uploads are accepted")
	ErrUploadFailed    = errors.New("upload to media CDN failed")
)

// Resource kinds.
const (
	KindImage = "image"
	KindVideo = "video"
)

// File is an incoming upload.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Asset is a stored file on the CDN.
type Asset struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
	Kind     string `json:"kind"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Bytes    int64  `json:"bytes"`
	BlurHash string `json:"blurhash,omitempty"`
}

// Uploader stores files on a CDN.
type Uploader interface {
	Upload(ctx context.Context, f File) (*Asset, error)
}

// CloudinaryUploader posts multipart uploads to a Cloudinary-compatible
// endpoint: POST {base}/v1_1/{cloud}/upload.
type CloudinaryUploader struct {
	cfg    config.MediaConfig
	client *http.Client
}

// NewCloudinaryUploader builds an uploader. A nil client gets one with the
// configured timeout.
func NewCloudinaryUploader(cfg config.MediaConfig, client *http.Client) *CloudinaryUploader {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &CloudinaryUploader{cfg: cfg, client: client}
}

type cdnResponse struct {
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int64  `json:"bytes"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload validates f, computes a BlurHash for images and forwards the file.
// Photos go to the configured folder, videos to the video folder.
func (u *CloudinaryUploader) Upload(ctx context.Context, f File) (*Asset, error) {
	if !u.cfg.Configured() {
		return nil, ErrNotConfigured
	}

	data, err := io.ReadAll(io.LimitReader(f.Body, u.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > u.cfg.MaxBytes {
		return nil, ErrTooLarge
	}

	ctype := DetectType(f.ContentType, data)
	kind := kindOf(ctype)
	if kind == "" {
		return nil, ErrUnsupportedType
	}

	var info ImageInfo
	folder := u.cfg.Folder
	if kind == KindImage {
		if info, err = Analyze(bytes.NewReader(data)); err != nil {
			// Undecodable formats (e.g. HEIC) still upload, just without a placeholder.
			log.Debug().Err(err).Str("content_type", ctype).Msg("blurhash skipped")
		}
	} else {
		folder = u.cfg.VideoFolder
	}

	body, formType, err := buildForm(f.Name, ctype, data, u.cfg.UploadPreset, folder)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1_1/%s/upload", u.cfg.BaseURL, u.cfg.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	var out cdnResponse
	decErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := resp.Status
		if decErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrUploadFailed, msg)
	}
	if decErr != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUploadFailed, decErr)
	}

	a := &Asset{
		URL:      out.SecureURL,
		PublicID: out.PublicID,
		Kind:     kind,
		Width:    out.Width,
		Height:   out.Height,
		Bytes:    out.Bytes,
		BlurHash: info.BlurHash,
	}
	if a.URL == "" {
		a.URL = out.URL
	}
	if a.URL == "" {
		return nil, fmt.Errorf("%w: response has no url", ErrUploadFailed)
	}
	if a.Width == 0 && a.Height == 0 {
		a.Width, a.Height = info.Width, info.Height
	}
	if a.Bytes == 0 {
		a.Bytes = int64(len(data))
	}
	return a, nil
}

// DetectType returns declared unless it is empty or generic, in which case the
// type is sniffed from the content.
func DetectType(declared string, data []byte) string {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
	}
	return ct
}

func kindOf(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo
	}
	return ""
}

func buildForm(name, contentType string, data []byte, preset, folder string) (io.Reader, string, error) {
	if name == "" {
		name = "upload"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("upload_preset", preset); err != nil {
		return nil, "", err
	}
	if folder != "" {
		if err := w.WriteField("folder", folder); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
