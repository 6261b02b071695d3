package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kylejryan/ucehub-portal/internal/authz"
	"github.com/kylejryan/ucehub-portal/internal/httpx"
	"github.com/kylejryan/ucehub-portal/internal/models"
	"github.com/kylejryan/ucehub-portal/internal/s3io"
	"github.com/kylejryan/ucehub-portal/internal/submission"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type handler struct {
	svc        *submission.Service
	log        *zap.Logger
	authSecret string
	now        func() time.Time
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "ucehub-backend"})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, token, err := authz.Login(h.authSecret, req.Email, req.Password, h.now())
	if errors.Is(err, authz.ErrCredentials) {
		httpx.Error(w, http.StatusBadRequest, "Email y contraseña son requeridos")
		return
	}
	if err != nil {
		h.log.Error("token signing failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
		return
	}
	httpx.JSON(w, http.StatusOK, LoginResponse{Success: true, Message: "Login exitoso", User: user, Token: token})
}

func (h *handler) menu(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, ListResponse{Success: true, Data: models.Menu, Count: len(models.Menu)})
}

// submit handles POST for kind.
func (h *handler) submit(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := h.body(w, r)
		if !ok {
			return
		}
		p, err := submission.Decode(kind, body)
		if err != nil {
			h.fail(w, err)
			return
		}
		ack, err := h.svc.Submit(r.Context(), p)
		if err != nil {
			h.fail(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, ack)
	}
}

// list handles GET for kind.
func (h *handler) list(kind models.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := h.svc.List(r.Context(), kind)
		if err != nil {
			h.fail(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, ListResponse{Success: true, Data: l.Data, Count: l.Count, Source: l.Source})
	}
}

// transition handles POST {<idField>: "..."} applying t to kind.
func (h *handler) transition(kind models.Kind, idField string, t models.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if !h.decode(w, r, &req) {
			return
		}
		id, _ := req[idField].(string)
		if strings.TrimSpace(id) == "" {
			h.fail(w, &submission.ValidationError{Kind: kind, Fields: []string{idField}})
			return
		}
		head, err := h.svc.Transition(r.Context(), kind, strings.TrimSpace(id), t)
		if err != nil {
			h.fail(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, submission.TransitionAcked(t, head))
	}
}

func (h *handler) record(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, DataResponse{Success: true, Data: rec})
}

func (h *handler) documentLink(w http.ResponseWriter, r *http.Request) {
	id, name := chi.URLParam(r, "id"), chi.URLParam(r, "fileName")
	url, ttl, err := h.svc.DocumentLink(r.Context(), id, name)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, DocumentLinkResponse{Success: true, URL: url, FileName: name, ExpiresIn: int(ttl.Seconds())})
}

func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	id, name := chi.URLParam(r, "id"), chi.URLParam(r, "fileName")
	rc, meta, err := h.svc.OpenDocument(r.Context(), id, name)
	if err != nil {
		h.fail(w, err)
		return
	}
	defer rc.Close()

	ct := meta.ContentType
	if ct == "" {
		ct = s3io.ContentTypeFor(name)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", s3io.AttachmentDisposition(name))
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("download interrupted", zap.String("id", id), zap.Error(err))
	}
}

func (h *handler) uploadURL(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if !h.decode(w, r, &req) {
		return
	}
	up, err := h.svc.UploadURL(r.Context(), strings.TrimSpace(req.RecordID), req.FileName, req.ContentType)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, DataResponse{Success: true, Data: up})
}

// ---- helpers ----

func (h *handler) body(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	b, err := io.ReadAll(r.Body)
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "unreadable body")
		return nil, false
	}
	return b, true
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	b, ok := h.body(w, r)
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		httpx.Error(w, http.StatusBadRequest, submission.ErrMalformed.Error())
		return false
	}
	return true
}

// fail maps workflow errors onto status codes. Internal details never reach
// the client.
func (h *handler) fail(w http.ResponseWriter, err error) {
	var ve *submission.ValidationError
	switch {
	case errors.As(err, &ve):
		httpx.Error(w, http.StatusBadRequest, ve.Message())
	case errors.Is(err, submission.ErrMalformed):
		httpx.Error(w, http.StatusBadRequest, submission.ErrMalformed.Error())
	case errors.Is(err, submission.ErrValidation):
		httpx.Error(w, http.StatusBadRequest, "Datos inválidos")
	case errors.Is(err, submission.ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "No encontrado")
	case errors.Is(err, submission.ErrInvalidTransition):
		httpx.Error(w, http.StatusConflict, "El estado actual no permite esta operación")
	default:
		h.log.Error("request failed", zap.Error(err))
		httpx.Error(w, http.StatusInternalServerError, "Error interno del servidor")
	}
}
