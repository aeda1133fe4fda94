// Upload HTTP handler.
//
// POST /uploads accepts one multipart file (field "file"), forwards it to the
// media CDN and returns the public URL. Images also get a BlurHash
// placeholder to show while the full image loads.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rent-share-backend/internal/http/middleware"
	"github.com/tbourn/rent-share-backend/internal/media"
)

const uploadField = "file"

// UploadMedia godoc
// @ID          uploadMedia
// @Summary     Upload a photo or video
// @Description Stores an image (listing photo, ID proof) or a short video proof on the media CDN. Returns the URL to put on a listing or profile.
// @Tags        Uploads
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
//
// @Param       file  formData  file  true  "Image or video"
//
// @Success     201  {object}  media.Asset
// @Failure     400  {object}  handlers.ErrorResponse  "Missing file"
// @Failure     413  {object}  handlers.ErrorResponse  "File too large"
// @Failure     415  {object}  handlers.ErrorResponse  "Not an image or video"
// @Failure     502  {object}  handlers.ErrorResponse  "CDN rejected the upload"
// @Failure     503  {object}  handlers.ErrorResponse  "Uploads not configured"
// @Router      /uploads [post]
func (h *Handlers) UploadMedia(c *gin.Context) {
	if h.uploader == nil {
		serviceError(c, media.ErrNotConfigured, ErrCodeUploadFailed)
		return
	}

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, media.ErrTooLarge.Error())
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" is required")
		return
	}

	f, err := fh.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "cannot read uploaded file")
		return
	}
	defer f.Close()

	asset, err := h.uploader.Upload(c.Request.Context(), media.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        f,
	})
	if err != nil {
		serviceError(c, err, ErrCodeUploadFailed)
		return
	}

	middleware.LoggerFrom(c).Info().
		Str("public_id", asset.PublicID).
		Str("kind", asset.Kind).
		Int64("bytes", asset.Bytes).
		Msg("media uploaded")
	ok(c, http.StatusCreated, asset)
}
