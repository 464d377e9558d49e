// Package handler exposes the gateway over HTTP.
package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	m "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"

	"github.com/zjx20/gemini-gateway/gateway"
	"github.com/zjx20/gemini-gateway/prompt"
)

const (
	MsgInvalidBody  = "Request body could not be read."
	MsgFileTooLarge = "Uploaded file is too large."

	defaultImageType = "image/jpeg"
	// multipart parts above this spill to disk during parsing
	multipartMemory = 8 << 20
)

// Service is the part of the gateway the handlers need.
type Service interface {
	Handle(ctx context.Context, req *gateway.Request) *gateway.Reply
}

type Handler struct {
	svc Service
}

func New(svc Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Text(w http.ResponseWriter, r *http.Request) {
	h.promptJSON(w, r, gateway.KindTextOnly)
}

func (h *Handler) HealthChat(w http.ResponseWriter, r *http.Request) {
	h.promptJSON(w, r, gateway.KindHealthChat)
}

func (h *Handler) promptJSON(w http.ResponseWriter, r *http.Request, kind gateway.Kind) {
	body := &promptBody{}
	if err := bind(r.Body, r, body); err != nil {
		h.bodyError(w, r, kind, err)
		return
	}
	h.respond(w, r, h.svc.Handle(r.Context(), &gateway.Request{Kind: kind, Prompt: body.Prompt}))
}

// WellnessChat always hands the request to the gateway, even when the body
// is unreadable, so the text can be screened before the error is answered.
func (h *Handler) WellnessChat(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	body := &wellnessBody{}
	if err == nil {
		err = bind(bytes.NewReader(data), r, body)
	}
	var req *gateway.Request
	if err != nil {
		req = salvageWellness(data)
		req.Rejection = rejection(r, err)
	} else {
		req = body.request()
	}
	if strings.TrimSpace(req.Locale) == "" {
		req.Locale = r.Header.Get("Accept-Language")
	}
	h.respond(w, r, h.svc.Handle(r.Context(), req))
}

func (h *Handler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	h.image(w, r, gateway.KindImageOnly)
}

func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	h.image(w, r, gateway.KindImageWithQuestion)
}

func (h *Handler) image(w http.ResponseWriter, r *http.Request, kind gateway.Kind) {
	if !h.parseMultipart(w, r, kind) {
		return
	}
	req := &gateway.Request{Kind: kind, Prompt: r.FormValue("prompt")}
	f, ok := h.formFile(w, r, kind, "file", "image")
	if !ok {
		return
	}
	if f != nil {
		req.Image = &prompt.Image{MIMEType: imageType(f), Data: f.data}
	}
	h.respond(w, r, h.svc.Handle(r.Context(), req))
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	kind := gateway.KindDocumentWithQuestion
	if !h.parseMultipart(w, r, kind) {
		return
	}
	req := &gateway.Request{Kind: kind, Prompt: r.FormValue("prompt")}
	f, ok := h.formFile(w, r, kind, "file", "document")
	if !ok {
		return
	}
	if f != nil {
		name := f.name
		if filepath.Ext(name) == "" && f.contentType != "" {
			name = f.contentType
		}
		req.Document = &gateway.Upload{Name: name, Data: f.data}
	}
	h.respond(w, r, h.svc.Handle(r.Context(), req))
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, reply *gateway.Reply) {
	render.Status(r, reply.HTTPStatus())
	render.JSON(w, r, reply.Envelope())
}

// parseMultipart reports whether the handler should go on. A body that is
// not multipart at all is treated as carrying no fields.
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request, kind gateway.Kind) bool {
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil || errors.Is(err, http.ErrNotMultipart) {
		return true
	}
	h.bodyError(w, r, kind, err)
	return false
}

func (h *Handler) bodyError(w http.ResponseWriter, r *http.Request, kind gateway.Kind, err error) {
	h.respond(w, r, rejection(r, err).Reply(kind))
}

func rejection(r *http.Request, err error) *gateway.Rejection {
	logger := log.WithField("request_id", m.GetReqID(r.Context()))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logger.Infof("body rejected, limit is %d bytes", tooLarge.Limit)
		return &gateway.Rejection{Outcome: gateway.OutcomeTooLarge, Text: MsgFileTooLarge}
	}
	logger.Debugf("bad request: %s", err)
	return &gateway.Rejection{Outcome: gateway.OutcomeInvalidInput, Text: MsgInvalidBody}
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

// formFile returns the first of fields present in the form, nil if none is.
func (h *Handler) formFile(w http.ResponseWriter, r *http.Request, kind gateway.Kind, fields ...string) (*upload, bool) {
	if r.MultipartForm == nil {
		return nil, true
	}
	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			h.bodyError(w, r, kind, err)
			return nil, false
		}
		f, err := readUpload(file, header)
		if err != nil {
			h.bodyError(w, r, kind, err)
			return nil, false
		}
		return f, true
	}
	return nil, true
}

func readUpload(file multipart.File, header *multipart.FileHeader) (*upload, error) {
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &upload{
		name:        header.Filename,
		contentType: mediaType(header.Header.Get("Content-Type")),
		data:        data,
	}, nil
}

// imageType picks the image MIME type from the part header, then the file
// extension, then falls back to JPEG.
func imageType(f *upload) string {
	if f.contentType != "" && f.contentType != "application/octet-stream" {
		return f.contentType
	}
	if t := mediaType(mime.TypeByExtension(filepath.Ext(f.name))); t != "" {
		return t
	}
	return defaultImageType
}

func mediaType(v string) string {
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return mt
}

// bind decodes a JSON body whatever the declared content type. An empty
// body decodes to the zero value so the gateway can answer with its
// missing-input message.
func bind(body io.Reader, r *http.Request, v render.Binder) error {
	if err := render.DecodeJSON(body, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return v.Bind(r)
}

