package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/dogstack/pkg/buildinfo"
	errs "github.com/matzehuels/dogstack/pkg/errors"
	"github.com/matzehuels/dogstack/pkg/history"
	"github.com/matzehuels/dogstack/pkg/imageio"
	"github.com/matzehuels/dogstack/pkg/pipeline"
)

const defaultRunLimit = 20

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
	Input   string    `json:"input,omitempty"`
}

// =============================================================================
// POST /v1/dog
// =============================================================================

func (s *Server) handleDoG(w http.ResponseWriter, r *http.Request) {
	run := history.NewRun(history.SourceAPI)

	out, err := s.processDoG(w, r, run)
	run.Finish(err)
	// Recorded before responding so the run is visible once the client has
	// the result.
	if recErr := s.history.Record(context.WithoutCancel(r.Context()), run); recErr != nil {
		s.logger.Warn("record run failed", "id", run.ID, "error", recErr)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", out.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.data)))
	w.Header().Set("X-Run-ID", run.ID)
	w.Header().Set("X-Cache-Hits", strconv.Itoa(out.cacheHits))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.data)
}

// dogResponse is an encoded result ready to be written.
type dogResponse struct {
	data        []byte
	contentType string
	cacheHits   int
}

func (s *Server) processDoG(w http.ResponseWriter, r *http.Request, run *history.Run) (*dogResponse, error) {
	opts, format, err := s.requestOptions(r)
	if err != nil {
		return nil, err
	}
	run.Params = opts.HistoryParams()

	inputs, err := s.readUploads(w, r)
	if err != nil {
		return nil, err
	}

	result, err := s.runner.Execute(r.Context(), inputs, opts)
	if err != nil {
		return nil, err
	}
	run.Inputs = result.HistoryInputs()
	run.Width, run.Height = result.Image.Width, result.Image.Height

	data, err := imageio.Encode(result.Image, format, opts.Quality)
	if err != nil {
		return nil, err
	}
	return &dogResponse{
		data:        data,
		contentType: imageio.ContentType(format),
		cacheHits:   result.CacheInfo.Hits,
	}, nil
}

// requestOptions applies query parameters on top of the server defaults.
func (s *Server) requestOptions(r *http.Request) (pipeline.Options, imageio.Format, error) {
	opts := s.cfg.Defaults.Copy()
	opts.Logger = nil
	opts.OnProgress = nil
	opts.Output = ""
	opts.Marks = nil
	q := r.URL.Query()

	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"sigma", &opts.Sigma},
		{"k", &opts.K},
	} {
		if v := q.Get(p.name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return opts, 0, errs.New(errs.ErrCodeInvalidParameter, "%s must be a number, got %q", p.name, v)
			}
			*p.dst = f
		}
	}
	if v := q.Get("quality"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			return opts, 0, errs.New(errs.ErrCodeInvalidParameter, "quality must be between 1 and 100, got %q", v)
		}
		opts.Quality = n
	}
	for name, dst := range map[string]*string{
		"radius":     &opts.Radius,
		"boundary":   &opts.Boundary,
		"method":     &opts.Method,
		"background": &opts.Background,
	} {
		if v := q.Get(name); v != "" {
			*dst = v
		}
	}
	opts.Marks = q["mark"]
	opts.Refresh = q.Get("refresh") == "true"

	format := imageio.PNG
	if v := q.Get("format"); v != "" {
		f, err := imageio.ParseFormat(v)
		if err != nil {
			return opts, 0, err
		}
		format = f
	}

	if err := opts.ValidateAndSetDefaults(); err != nil {
		return opts, 0, err
	}
	return opts, format, nil
}

// readUploads reads every "image" part of the multipart body.
func (s *Server) readUploads(w http.ResponseWriter, r *http.Request) ([]pipeline.Input, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errs.New(errs.ErrCodeInvalidInput, "upload exceeds %d bytes", tooLarge.Limit)
		}
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "expected a multipart/form-data body")
	}
	defer r.MultipartForm.RemoveAll()

	parts := r.MultipartForm.File["image"]
	if len(parts) == 0 {
		return nil, errs.New(errs.ErrCodeInvalidInput, pipeline.ErrNoInputs)
	}

	inputs := make([]pipeline.Input, len(parts))
	for i, fh := range parts {
		if err := errs.ValidateUploadName(fh.Filename); err != nil {
			return nil, errs.ForInput(fh.Filename, err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errs.ForInput(fh.Filename, errs.Wrap(errs.ErrCodeIO, err, "open upload"))
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, errs.ForInput(fh.Filename, errs.Wrap(errs.ErrCodeIO, err, "read upload"))
		}
		inputs[i] = pipeline.Input{Name: fh.Filename, Data: data}
	}
	return inputs, nil
}

// =============================================================================
// History
// =============================================================================

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, errs.New(errs.ErrCodeInvalidParameter, "limit must be a positive integer, got %q", v))
			return
		}
		limit = n
	}
	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// =============================================================================
// Status
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.counters.Snapshot())
}

// =============================================================================
// Responses
// =============================================================================

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	code := errs.GetCode(err)
	if code == "" {
		code = errs.ErrCodeInternal
		if errors.Is(err, history.ErrNotFound) {
			code = errs.ErrCodeNotFound
		}
	}
	resp := errorResponse{Code: code, Message: errs.UserMessage(err)}
	var ie *errs.InputError
	if errors.As(err, &ie) {
		resp.Input = ie.Input
		resp.Message = ie.Input + ": " + errs.UserMessage(ie.Err)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, resp)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	switch errs.GetCode(err) {
	case errs.ErrCodeInvalidParameter, errs.ErrCodeInvalidInput, errs.ErrCodeInvalidFormat,
		errs.ErrCodeInvalidPath, errs.ErrCodeUnsupported:
		return http.StatusBadRequest
	case errs.ErrCodeDecode, errs.ErrCodeDimensionMismatch:
		return http.StatusUnprocessableEntity
	case errs.ErrCodeNotFound:
		return http.StatusNotFound
	case errs.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
