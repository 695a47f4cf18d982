package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"claimgate/internal/claim"
	"claimgate/internal/secureinput"
	"claimgate/internal/upload"
	"claimgate/internal/wizard"
	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/platform/httputil"
	"claimgate/pkg/requestcontext"
)

const (
	maxEnvelopeBytes  = 16 << 10
	multipartMemory   = 8 << 20
	defaultUploadBody = 64 << 20
)

//go:generate mockgen -source=handler.go -destination=mocks/claim-mocks.go -package=mocks Service,TokenIssuer

// Service defines the wizard operations exposed over HTTP.
type Service interface {
	CreateSession(ctx context.Context) uuid.UUID
	State(ctx context.Context, sessionID uuid.UUID) (claim.State, error)
	SaveSlice(ctx context.Context, sessionID uuid.UUID, name string, partial map[string]any) (wizard.Slice, error)
	SetReceiptType(ctx context.Context, sessionID uuid.UUID, value string) (bool, error)
	ResetAll(ctx context.Context, sessionID uuid.UUID)
	InputView(ctx context.Context, sessionID uuid.UUID, field string) (secureinput.View, error)
	InputAction(ctx context.Context, sessionID uuid.UUID, field string, action claim.KeyAction, key string) (secureinput.View, error)
	SubmitEnvelope(ctx context.Context, sessionID uuid.UUID, field string, raw []byte) error
	Contracts(ctx context.Context, sessionID uuid.UUID) ([]wizard.Contract, error)
	Upload(ctx context.Context, sessionID uuid.UUID, category string, files []upload.File, metadata upload.Metadata) (upload.Result, error)
	RemoveUpload(ctx context.Context, sessionID uuid.UUID, category string, slot int) (upload.Entry, error)
	Submit(ctx context.Context, sessionID uuid.UUID) (claim.SubmitResult, error)
}

// TokenIssuer mints the bearer token bound to a new session.
type TokenIssuer interface {
	Issue(sessionID uuid.UUID, device string) (string, time.Time, error)
}

// Handler wires wizard endpoints to the claim service.
type Handler struct {
	service       Service
	tokens        TokenIssuer
	logger        *slog.Logger
	maxUploadBody int64
}

// New constructs a claim handler. maxUploadBody bounds a whole multipart
// request; zero uses the default.
func New(service Service, tokens TokenIssuer, logger *slog.Logger, maxUploadBody int64) *Handler {
	if maxUploadBody <= 0 {
		maxUploadBody = defaultUploadBody
	}
	return &Handler{
		service:       service,
		tokens:        tokens,
		logger:        logger,
		maxUploadBody: maxUploadBody,
	}
}

// RegisterPublic mounts the endpoints that need no session.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/sessions", h.HandleCreateSession)
}

// Register mounts the session-bound wizard endpoints. The caller installs the
// session middleware.
func (h *Handler) Register(r chi.Router) {
	r.Route("/wizard", func(r chi.Router) {
		r.Get("/", h.HandleState)
		r.Patch("/slices/{slice}", h.HandleSaveSlice)
		r.Put("/receipt-type", h.HandleReceiptType)
		r.Post("/reset", h.HandleReset)
		r.Get("/inputs/{field}", h.HandleInputView)
		r.Post("/inputs/{field}/{action}", h.HandleInputAction)
		r.Put("/envelopes/{field}", h.HandleEnvelope)
		r.Get("/contracts", h.HandleContracts)
		r.Post("/uploads", h.HandleUpload)
		r.Delete("/uploads/{category}/{slot}", h.HandleRemoveUpload)
		r.Post("/submit", h.HandleSubmit)
	})
}

// sessionFrom writes 401 and returns false when the middleware bound no session.
func sessionFrom(w http.ResponseWriter, ctx context.Context) (uuid.UUID, bool) {
	id := requestcontext.SessionID(ctx)
	if id == uuid.Nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session required"))
		return uuid.Nil, false
	}
	return id, true
}

// HandleCreateSession handles POST /sessions.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id := h.service.CreateSession(ctx)
	token, expiresAt, err := h.tokens.Issue(id, requestcontext.Device(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue session token",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start session"))
		return
	}

	h.logger.InfoContext(ctx, "wizard session started",
		"request_id", requestID,
		"session_id", id.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, SessionResponse{
		SessionID: id.String(),
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleState handles GET /wizard.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	state, err := h.service.State(ctx, id)
	if err != nil {
		h.fail(w, ctx, "failed to load wizard state", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

// HandleSaveSlice handles PATCH /wizard/slices/{slice}.
func (h *Handler) HandleSaveSlice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SaveSliceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	name := chi.URLParam(r, "slice")
	merged, err := h.service.SaveSlice(ctx, id, name, req.Values)
	if err != nil {
		h.fail(w, ctx, "failed to save slice", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, SliceResponse{Slice: name, Values: merged})
}

// HandleReceiptType handles PUT /wizard/receipt-type.
func (h *Handler) HandleReceiptType(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReceiptTypeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	reset, err := h.service.SetReceiptType(ctx, id, req.ReceiptType)
	if err != nil {
		h.fail(w, ctx, "failed to set receipt type", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ReceiptTypeResponse{ReceiptType: req.ReceiptType, Reset: reset})
}

// HandleReset handles POST /wizard/reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	h.service.ResetAll(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleInputView handles GET /wizard/inputs/{field}.
func (h *Handler) HandleInputView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	view, err := h.service.InputView(ctx, id, chi.URLParam(r, "field"))
	if err != nil {
		h.fail(w, ctx, "failed to load secure input", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleInputAction handles POST /wizard/inputs/{field}/{action}. Failed
// actions still return the input view so the keypad can redraw.
func (h *Handler) HandleInputAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	action, err := claim.ParseKeyAction(chi.URLParam(r, "action"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var key string
	if action == claim.KeyPress {
		req, ok := httputil.DecodeAndPrepare[KeyPressRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		key = req.Key
	}

	field := chi.URLParam(r, "field")
	view, err := h.service.InputAction(ctx, id, field, action, key)
	if err != nil {
		code := dErrors.CodeOf(err)
		h.logger.WarnContext(ctx, "secure input action failed",
			"request_id", requestcontext.RequestID(ctx),
			"field", field,
			"action", string(action),
			"code", string(code),
		)
		body := map[string]any{"error": string(code), "input": view}
		if de, ok := dErrors.As(err); ok && code != dErrors.CodeInternal && code != dErrors.CodeEncryptionFailed {
			body["error_description"] = de.Message
		}
		httputil.WriteJSON(w, httputil.StatusFor(code), body)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleEnvelope handles PUT /wizard/envelopes/{field}. The body is the raw
// envelope and is parsed by the service.
func (h *Handler) HandleEnvelope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "envelope body too large"))
		return
	}
	if err := h.service.SubmitEnvelope(ctx, id, chi.URLParam(r, "field"), raw); err != nil {
		h.fail(w, ctx, "failed to accept envelope", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleContracts handles GET /wizard/contracts.
func (h *Handler) HandleContracts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	contracts, err := h.service.Contracts(ctx, id)
	if err != nil {
		h.fail(w, ctx, "failed to load contracts", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ContractsResponse{Contracts: contracts})
}

// HandleUpload handles POST /wizard/uploads with a category field, an
// optional JSON metadata field and one or more file parts.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart body"))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	category := r.FormValue("category")
	if category == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "category is required"))
		return
	}
	var metadata upload.Metadata
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "metadata must be a JSON object"))
			return
		}
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "at least one file is required"))
		return
	}

	files, closeAll, err := openParts(headers)
	defer closeAll()
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "could not read uploaded file"))
		return
	}

	result, err := h.service.Upload(ctx, id, category, files, metadata)
	if err != nil {
		var upErr *upload.Error
		if errors.As(err, &upErr) {
			h.logger.WarnContext(ctx, "upload batch failed",
				"request_id", requestcontext.RequestID(ctx),
				"category", category,
				"cause", string(upErr.Cause),
				"committed", len(result.Committed),
			)
			httputil.WriteJSON(w, uploadStatus(upErr.Cause), UploadErrorResponse{
				Error:            string(dErrors.CodeUploadFailed),
				ErrorDescription: upErr.Message(),
				Cause:            upErr.Cause,
				File:             upErr.File,
				Committed:        result.Committed,
			})
			return
		}
		h.fail(w, ctx, "upload failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, UploadResponse{Committed: result.Committed})
}

func openParts(headers []*multipart.FileHeader) ([]upload.File, func(), error) {
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		opened = append(opened, f)
		files = append(files, upload.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}
	return files, closeAll, nil
}

func uploadStatus(cause upload.Cause) int {
	switch cause {
	case upload.CauseOversized:
		return http.StatusRequestEntityTooLarge
	case upload.CauseMalformed:
		return http.StatusUnprocessableEntity
	case upload.CauseTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// HandleRemoveUpload handles DELETE /wizard/uploads/{category}/{slot}.
func (h *Handler) HandleRemoveUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "slot must be a number"))
		return
	}
	entry, err := h.service.RemoveUpload(ctx, id, chi.URLParam(r, "category"), slot)
	if err != nil {
		h.fail(w, ctx, "failed to remove upload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RemoveUploadResponse{Removed: entry})
}

// HandleSubmit handles POST /wizard/submit.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := sessionFrom(w, ctx)
	if !ok {
		return
	}
	start := time.Now()
	result, err := h.service.Submit(ctx, id)
	if err != nil {
		h.fail(w, ctx, "claim submit failed", err)
		return
	}
	h.logger.InfoContext(ctx, "claim submitted",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", id.String(),
		"files", result.FileCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// fail logs at a level matching the error's code and writes the response.
func (h *Handler) fail(w http.ResponseWriter, ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
