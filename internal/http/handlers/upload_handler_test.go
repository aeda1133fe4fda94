package handlers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tbourn/rent-share-backend/internal/http/middleware"
	"github.com/tbourn/rent-share-backend/internal/media"
)

type fakeUploader struct {
	got []byte
	err error
}

func (f *fakeUploader) Upload(_ context.Context, file media.File) (*media.Asset, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(file.Body)
	f.got = b
	return &media.Asset{
		URL:      "https://cdn.test/" + file.Name,
		PublicID: "rentshare/" + file.Name,
		Kind:     "image",
		Bytes:    int64(len(b)),
	}, nil
}

func uploadRequest(t *testing.T, api *testAPI, field, name string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.HeaderUserID, "owner")
	w := httptest.NewRecorder()
	api.r.ServeHTTP(w, req)
	return w
}

func TestUploadMedia(t *testing.T) {
	up := &fakeUploader{}
	api := newTestAPI(t, Deps{Uploader: up})

	w := uploadRequest(t, api, "file", "tent.png", []byte("png-bytes"))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var asset media.Asset
	decode(t, w, &asset)
	if asset.URL != "https://cdn.test/tent.png" || asset.Bytes != 9 || string(up.got) != "png-bytes" {
		t.Fatalf("unexpected asset %+v", asset)
	}

	expectError(t, uploadRequest(t, api, "photo", "tent.png", []byte("x")), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestUploadMedia_Errors(t *testing.T) {
	cases := []struct {
		name   string
		deps   Deps
		status int
		code   string
	}{
		{"not configured", Deps{}, http.StatusServiceUnavailable, ErrCodeMediaNotConfigured},
		{"unsupported type", Deps{Uploader: &fakeUploader{err: media.ErrUnsupportedType}}, http.StatusUnsupportedMediaType, ErrCodeUnsupportedMedia},
		{"too large", Deps{Uploader: &fakeUploader{err: media.ErrTooLarge}}, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
		{"cdn failure", Deps{Uploader: &fakeUploader{err: media.ErrUploadFailed}}, http.StatusBadGateway, ErrCodeUploadFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := newTestAPI(t, tc.deps)
			expectError(t, uploadRequest(t, api, "file", "clip.txt", []byte("x")), tc.status, tc.code)
		})
	}
}
