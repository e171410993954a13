package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/darbyjahn/smallphot0-backend/internal/ingest"
	"github.com/darbyjahn/smallphot0-backend/internal/logging"
)

// multipartMemory is how much of a multipart body is kept in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

// UploadResponse is the body of an upload reply.
type UploadResponse struct {
	Success bool `json:"success"`
	*ingest.Result
}

// Upload ingests the multipart field "files" into a gallery, creating the
// gallery when it does not exist. Optional fields title, bg and text are
// used only for a new gallery. A batch where some files failed is answered
// with 207 and per-file results.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeJSONError(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "No files uploaded", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.Debug("failed to remove multipart temp files: %v", err)
		}
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSONError(w, "No files uploaded", http.StatusBadRequest)
		return
	}

	req := ingest.Request{
		GalleryID: id,
		Title:     r.FormValue("title"),
		BgColor:   r.FormValue("bg"),
		TextColor: r.FormValue("text"),
		Files:     make([]ingest.File, 0, len(headers)),
	}
	for _, fh := range headers {
		req.Files = append(req.Files, uploadFile(fh))
	}

	res, err := h.pipeline.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, "upload", err)
		return
	}

	status := http.StatusOK
	if !res.OK() {
		status = http.StatusMultiStatus
	}
	writeJSONStatus(w, status, UploadResponse{Success: res.OK(), Result: res})
}

// uploadFile describes one multipart part. Parts that spilled to disk are
// moved into the gallery instead of copied.
func uploadFile(fh *multipart.FileHeader) ingest.File {
	f := ingest.File{
		Name: fh.Filename,
		Open: func() (io.ReadCloser, error) { return fh.Open() },
	}

	part, err := fh.Open()
	if err != nil {
		return f
	}
	if osFile, ok := part.(*os.File); ok {
		f.Path = osFile.Name()
	}
	if err := part.Close(); err != nil {
		logging.Debug("failed to close upload part %q: %v", fh.Filename, err)
	}
	return f
}
