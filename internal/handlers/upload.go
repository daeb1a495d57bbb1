package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/caulicare-api/internal/metrics"
)

const (
	fileField      = "file"
	modelNameField = "model_name"

	// slack for multipart boundaries and part headers on top of the file limit
	formOverhead = 64 << 10
	maxFieldSize = 256
)

// upload is the image part of a multipart request, plus any model_name
// field that preceded it.
type upload struct {
	Filename    string
	ContentType string
	Data        []byte
	ModelName   string
}

// readUpload streams the multipart body up to the file part. It rejects
// oversized declarations before touching the body and non-image parts
// before reading their content. On failure the response is already written.
func (h *Handler) readUpload(c *gin.Context) (*upload, bool) {
	limit := h.policy.MaxUploadBytes

	if c.Request.ContentLength > limit+formOverhead {
		h.reject(c, http.StatusRequestEntityTooLarge, metrics.ReasonTooLarge, tooLargeMessage(limit))
		return nil, false
	}

	mr, err := c.Request.MultipartReader()
	if err != nil {
		h.reject(c, http.StatusUnprocessableEntity, "", "Expected a multipart/form-data body with a 'file' field")
		return nil, false
	}

	up := &upload{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			h.reject(c, http.StatusUnprocessableEntity, "", "Missing form field 'file'")
			return nil, false
		}
		if err != nil {
			h.reject(c, http.StatusBadRequest, "", fmt.Sprintf("Malformed multipart body: %v", err))
			return nil, false
		}

		switch part.FormName() {
		case modelNameField:
			value, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			part.Close()
			if err != nil {
				h.reject(c, http.StatusBadRequest, "", fmt.Sprintf("Malformed multipart body: %v", err))
				return nil, false
			}
			up.ModelName = strings.TrimSpace(string(value))

		case fileField:
			defer part.Close()

			up.Filename = part.FileName()
			up.ContentType = part.Header.Get("Content-Type")
			if !strings.HasPrefix(up.ContentType, "image/") {
				h.reject(c, http.StatusUnsupportedMediaType, metrics.ReasonUnsupportedMediaType, "Only image files are supported")
				return nil, false
			}

			data, err := io.ReadAll(io.LimitReader(part, limit+1))
			if err != nil {
				h.reject(c, http.StatusBadRequest, "", fmt.Sprintf("Failed to read upload: %v", err))
				return nil, false
			}
			if int64(len(data)) > limit {
				h.reject(c, http.StatusRequestEntityTooLarge, metrics.ReasonTooLarge, tooLargeMessage(limit))
				return nil, false
			}
			up.Data = data
			return up, true

		default:
			part.Close()
		}
	}
}

func tooLargeMessage(limit int64) string {
	return fmt.Sprintf("File too large (>%d MB)", limit/(1024*1024))
}
