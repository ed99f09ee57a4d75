package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/api/problem"
	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/importer"
	"github.com/adscope/harvester/internal/metrics"
)

const maxImportBody = 20 << 20

// ImportHandler accepts manual uploads: a JSON export or a CSV, either as a
// multipart file or as the raw request body.
type ImportHandler struct {
	importer Importer
	recorder *importer.Recorder
	env      string
	logger   zerolog.Logger
}

func NewImportHandler(imp Importer, recorder *importer.Recorder, env string, logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{importer: imp, recorder: recorder, env: env, logger: logger}
}

type importResponse struct {
	Total        int      `json:"total"`
	Imported     int      `json:"imported"`
	Updated      int      `json:"updated"`
	Errors       int      `json:"errors"`
	ErrorDetails []string `json:"errorDetails,omitempty"`
	Format       string   `json:"format"`
}

// Upload handles POST /api/v1/import. tenant_id comes from the query or
// the multipart form; the upload format is sniffed from the content.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	content, err := h.readContent(r)
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Unreadable upload", err, h.env)
		return
	}
	if len(content) == 0 {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Empty upload",
			fmt.Errorf("request carried no content"), h.env)
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		tenantID = r.FormValue("tenant_id")
	}
	if tenantID == "" {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Missing tenant",
			fmt.Errorf("tenant_id is required"), h.env)
		return
	}

	candidates, format, err := ads.DecodeUpload(string(content))
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, "about:blank", "Unrecognized upload format", err, h.env)
		return
	}

	startedAt := time.Now().UTC()
	defaults := ads.Defaults{Country: r.URL.Query().Get("country")}
	records := make([]ads.AdRecord, 0, len(candidates))
	var result importer.Result
	for _, candidate := range candidates {
		record, normErr := ads.Normalize(candidate, format, defaults)
		if normErr != nil {
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, normErr.Error())
			metrics.AdsRejected.Inc()
			continue
		}
		records = append(records, record)
	}

	result.Merge(h.importer.ImportBatch(r.Context(), records, tenantID))

	h.recorder.Record(r.Context(), importer.RunSummary{
		TenantID:    tenantID,
		JobName:     "import:manual",
		TaskType:    "import",
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
		Result:      result,
		Metadata:    map[string]any{"format": string(format), "received": len(candidates)},
	})

	writeJSON(w, http.StatusOK, importResponse{
		Total:        len(candidates),
		Imported:     result.Imported,
		Updated:      result.Updated,
		Errors:       result.Errors,
		ErrorDetails: result.ErrorDetails,
		Format:       string(format),
	})
}

// readContent prefers a multipart "file" part and falls back to the raw
// body. Non-multipart requests skip form parsing entirely: ParseForm would
// consume the body for urlencoded content types before we could read it.
func (h *ImportHandler) readContent(r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxImportBody)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImportBody); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("multipart upload is missing the file part: %w", err)
		}
		defer func() { _ = file.Close() }()
		return io.ReadAll(file)
	}

	return io.ReadAll(r.Body)
}
