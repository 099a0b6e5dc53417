package api

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/mwren/chitter/internal/chitter"
)

const maxUploadBytes = 50 << 20 // 50 MiB, per spec.md §6

// handleUploadAttachment sniffs the uploaded file's MIME type, writes it to
// disk under a random-id name that preserves the original extension,
// captures width/height for images, and delegates to the Service. Any
// downstream failure unlinks the file that was already written.
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeValidationError(w, "file exceeds the 50 MiB upload ceiling")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeValidationError(w, "missing multipart field \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeValidationError(w, "failed to read uploaded file")
		return
	}

	sniffLen := len(data)
	if sniffLen > 512 {
		sniffLen = 512
	}
	mimeType := http.DetectContentType(data[:sniffLen])

	var attType chitter.AttachmentType
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		attType = chitter.AttachmentImage
	case strings.HasPrefix(mimeType, "video/"):
		attType = chitter.AttachmentVideo
	case mimeType == "application/octet-stream" || strings.HasPrefix(mimeType, "application/") || strings.HasPrefix(mimeType, "text/"):
		attType = chitter.AttachmentFile
	default:
		s.writeServiceError(w, chitter.Tagged(chitter.TagInvalidFileType, nil))
		return
	}

	width, height := 0, 0
	if attType == chitter.AttachmentImage {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			width, height = cfg.Width, cfg.Height
		}
	}

	id := uuid.NewString()
	destPath := filepath.Join(s.uploadDir, id+filepath.Ext(header.Filename))

	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		s.writeServiceError(w, chitter.Tagged(chitter.TagCouldNotUploadAttachment, err))
		return
	}

	att, err := s.svc.UploadAttachment(r.Context(), bearerToken(r), chitter.AttachmentUpload{
		Type:     attType,
		FileName: header.Filename,
		Path:     destPath,
		Width:    width,
		Height:   height,
	})
	if err != nil {
		os.Remove(destPath)
		s.writeServiceError(w, err)
		return
	}

	s.writeSuccess(w, att)
}
