package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gpkg-cli/internal/coerce"
	"github.com/sells-group/gpkg-cli/internal/convert"
	"github.com/sells-group/gpkg-cli/internal/gpkg"
	"github.com/sells-group/gpkg-cli/internal/loader"
)

// resultSuffix marks converted output names.
const resultSuffix = "_TULOS"

// Error kind names reported by the status endpoint.
const (
	kindDocument   = "DocumentError"
	kindWrite      = "WriteError"
	kindConversion = "ConversionError"
)

// statusResponse is the metadata of a finished conversion.
type statusResponse struct {
	UUID           string                `json:"uuid"`
	Name           string                `json:"name"`
	Layer          string                `json:"layer"`
	Rows           int                   `json:"rows"`
	RenamedColumns []string              `json:"renamed_columns,omitempty"`
	Columns        []coerce.ColumnReport `json:"columns"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   s.jobs.Stats(),
	})
}

// handleUpload stores the uploaded file in the work dir, starts the
// conversion in the background and answers with the job id. Uploads are
// stored as GeoJSON unless the file name ends in .xlsx or .csv.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	base := baseName(header.Filename)
	layer := strings.TrimSpace(r.FormValue("layer"))
	if layer == "" {
		layer = base + resultSuffix
	}

	if !s.track() {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	id := s.jobs.Create(base+resultSuffix+".gpkg", layer)
	in, out := convert.Paths(s.opts.WorkDir, id)
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext == ".xlsx" || ext == ".csv" {
		in = strings.TrimSuffix(in, filepath.Ext(in)) + ext
	}
	if err := saveUpload(in, file); err != nil {
		s.wg.Done()
		s.log.Error("server: save upload", zap.String("uuid", id), zap.Error(err))
		s.jobs.Fail(id, kindConversion)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	s.log.Info("file uploaded",
		zap.String("uuid", id),
		zap.String("file", header.Filename),
		zap.String("layer", layer),
	)

	go func() {
		defer s.wg.Done()
		s.runConversion(id, convert.Request{
			Input:          in,
			Output:         out,
			Layer:          layer,
			Charset:        s.opts.Charset,
			SRID:           s.opts.SRID,
			Workers:        s.opts.Workers,
			DateNameMarker: s.opts.DateNameMarker,
		})
	}()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, id)
}

// runConversion converts one job and records the outcome. Work files are
// gone by the time the job leaves pending.
func (s *Server) runConversion(id string, req convert.Request) {
	res, data, err := s.convertFiles(req)
	if err != nil {
		kind := errorKind(err)
		s.log.Error("conversion failed", zap.String("uuid", id), zap.String("kind", kind), zap.Error(err))
		s.jobs.Fail(id, kind)
		return
	}
	s.jobs.Complete(id, res, data)
}

func (s *Server) convertFiles(req convert.Request) (*convert.Result, []byte, error) {
	defer func() {
		for _, p := range []string{req.Input, req.Output} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				s.log.Warn("server: remove work file", zap.String("path", p), zap.Error(err))
			}
		}
	}()

	res, err := convert.Run(s.ctx, req)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(req.Output)
	if err != nil {
		return nil, nil, &gpkg.WriteError{Path: req.Output, Err: eris.Wrap(err, "server: read output")}
	}
	return res, data, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	job, ok := s.jobs.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, struct{}{})
		return
	}

	switch job.State {
	case JobFailed:
		writeJSON(w, http.StatusBadRequest, job.ErrorKind)
	case JobDone:
		writeJSON(w, http.StatusOK, statusResponse{
			UUID:           job.ID,
			Name:           job.Name,
			Layer:          job.Layer,
			Rows:           job.Result.Rows,
			RenamedColumns: job.Result.RenamedColumns,
			Columns:        job.Result.Report.Columns,
		})
	default:
		writeJSON(w, http.StatusAccepted, struct{}{})
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")
	job, ok := s.jobs.Get(id)
	switch {
	case !ok || job.State == JobFailed:
		http.Error(w, "No such file or conversion failed", http.StatusNotFound)
		return
	case job.State == JobPending:
		http.Error(w, "Conversion in progress", http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(job.Name))
	w.Header().Set("Content-Type", "application/geopackage+sqlite3")
	http.ServeContent(w, r, job.Name, job.Finished, bytes.NewReader(job.Data))
}

// errorKind names the failure category reported to clients.
func errorKind(err error) string {
	switch {
	case loader.IsDocumentError(err):
		return kindDocument
	case gpkg.IsWriteError(err):
		return kindWrite
	default:
		return kindConversion
	}
}

func saveUpload(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "server: create upload file")
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return eris.Wrap(err, "server: write upload file")
	}
	return eris.Wrap(f.Close(), "server: close upload file")
}

// baseName strips directories and the extension from an uploaded file name.
func baseName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "." || name == "/" {
		return "upload"
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
