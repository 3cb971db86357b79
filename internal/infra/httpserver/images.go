package httpserver

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	appanalysis "github.com/bryanwahyu/mediscan/internal/application/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/images"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

// multipart framing allowance on top of the file cap
const formOverhead = 1 << 20

// POST /v1/images (multipart field "file")
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload+formOverhead)

	file, header, err := req.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return middleware.TooLarge(r.maxUpload)
		}
		return invalid("multipart field \"file\" is required")
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	data, err := io.ReadAll(io.LimitReader(file, r.maxUpload+1))
	if err != nil {
		return invalid("could not read upload")
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if err := middleware.ValidateUpload(contentType, int64(len(data)), r.allowedTypes, r.maxUpload); err != nil {
		return err
	}

	retries := &retryNotices{w: w}
	out, err := r.analysis.UploadAndAnalyze(req.Context(), appanalysis.UploadCommand{
		UserID:      userID(req),
		FileName:    middleware.SanitizeString(header.Filename),
		ContentType: contentType,
		Data:        data,
	}, retries.add)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, outcomeResponse{Outcome: out, Notices: retries.list})
}

// outcomeResponse is an Outcome plus the retries it took to get there.
type outcomeResponse struct {
	*appanalysis.Outcome
	Notices []appanalysis.Notice `json:"notices,omitempty"`
}

// retryNotices collects retry notices for one request and mirrors the count
// in X-Retry-Attempts, which also survives on error responses.
type retryNotices struct {
	w    http.ResponseWriter
	list []appanalysis.Notice
}

func (n *retryNotices) add(notice appanalysis.Notice) {
	n.list = append(n.list, notice)
	n.w.Header().Set("X-Retry-Attempts", strconv.Itoa(len(n.list)))
}

// GET /v1/images?limit=20[&before=<RFC3339>&before_id=<id>]
func (r *Router) handleImages(w http.ResponseWriter, req *http.Request) error {
	limit := middleware.ValidateLimit(queryInt(req, "limit"))
	before, ok, err := queryTime(req, "before")
	if err != nil {
		return err
	}

	var list []*images.Image
	if ok {
		list, err = r.analysis.CursorImages(req.Context(), userID(req), before, req.URL.Query().Get("before_id"), limit)
	} else {
		list, err = r.analysis.LatestImages(req.Context(), userID(req), limit)
	}
	if err != nil {
		return err
	}
	if list == nil {
		list = []*images.Image{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/images/{id}/url
func (r *Router) handleImageURL(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "image")
	if err != nil {
		return err
	}
	url, expires, err := r.analysis.ImageURL(req.Context(), userID(req), images.ImageID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_at": expires,
	})
}

// POST /v1/images/{id}/analyze
func (r *Router) handleAnalyzeImage(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "image")
	if err != nil {
		return err
	}
	retries := &retryNotices{w: w}
	out, err := r.analysis.AnalyzeImage(req.Context(), userID(req), images.ImageID(id), retries.add)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, outcomeResponse{Outcome: out, Notices: retries.list})
}

// GET /v1/images/{id}/errors?limit=20
func (r *Router) handleImageErrors(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "image")
	if err != nil {
		return err
	}
	list, err := r.analysis.ImageErrors(req.Context(), userID(req), images.ImageID(id), middleware.ValidateLimit(queryInt(req, "limit")))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{"data": list})
}
