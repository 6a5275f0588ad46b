package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/example/bannerdesk/internal/export"
	"github.com/example/bannerdesk/internal/feed"
	"github.com/example/bannerdesk/internal/leads"
	"github.com/example/bannerdesk/internal/media"
	"github.com/example/bannerdesk/internal/store"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in RAM
// before spilling to temp files.
const multipartMemory = 32 << 20

type bannersResponse struct {
	Banners []store.Image `json:"banners"`
}

type customersResponse struct {
	Customers []store.Customer `json:"customers"`
}

type policiesResponse struct {
	Privacy    string `json:"privacy"`
	ThirdParty string `json:"thirdParty"`
}

type loginRequest struct {
	Pin string `json:"pin"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type reorderRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

type pinRequest struct {
	Pin string `json:"pin"`
}

type policyRequest struct {
	Text *string `json:"text"`
}

func (s *Server) listBanners(w http.ResponseWriter, r *http.Request) {
	images, err := s.gallery.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "list banners", err)
		return
	}
	writeJSON(w, http.StatusOK, bannersResponse{Banners: images})
}

func (s *Server) getPolicies(w http.ResponseWriter, r *http.Request) {
	privacy, err := s.settings.PrivacyPolicy(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "read privacy policy", err)
		return
	}
	third, err := s.settings.ThirdPartyPolicy(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "read third-party policy", err)
		return
	}
	writeJSON(w, http.StatusOK, policiesResponse{Privacy: privacy, ThirdParty: third})
}

func (s *Server) getOptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog)
}

func (s *Server) submitLead(w http.ResponseWriter, r *http.Request) {
	var sub leads.Submission
	if !decodeJSON(w, r, &sub) {
		return
	}
	c, err := s.leads.Submit(r.Context(), sub)
	if err != nil {
		s.writeServiceError(w, r, "submit lead", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, err := s.settings.VerifyPin(r.Context(), req.Pin)
	if err != nil {
		s.writeServiceError(w, r, "verify pin", err)
		return
	}
	if !ok {
		s.logger.Warn("admin login rejected", "ip", clientIP(r))
		writeError(w, http.StatusUnauthorized, "unauthorized", "incorrect PIN", nil)
		return
	}
	token, expires, err := s.sessions.Issue()
	if err != nil {
		s.writeServiceError(w, r, "issue session", err)
		return
	}
	s.setSessionCookie(w, token, expires)
	s.logger.Info("admin login", "ip", clientIP(r), "expires_at", expires)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires.UTC()})
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.leads.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "list customers", err)
		return
	}
	writeJSON(w, http.StatusOK, customersResponse{Customers: customers})
}

func (s *Server) exportCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := s.leads.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "export customers", err)
		return
	}
	loc := s.cfg.Location()
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, export.SheetName, export.CustomerHeader, export.CustomerRows(customers, loc)); err != nil {
		s.writeServiceError(w, r, "export customers", err)
		return
	}
	s.audit(r, "customers exported", "rows", len(customers))

	name := export.FileName(s.now().In(loc))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.leads.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, "delete customer", err)
		return
	}
	s.audit(r, "customer deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uploadBanners(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large", map[string]any{"limit": tooLarge.Limit})
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "expected multipart form", map[string]any{"error": err.Error()})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "no files", nil)
		return
	}

	files := make([]media.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("read %s", h.Filename), map[string]any{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("read %s", h.Filename), map[string]any{"error": err.Error()})
			return
		}
		files = append(files, media.File{Name: h.Filename, ContentType: h.Header.Get("Content-Type"), Data: data})
	}

	res, err := s.gallery.Upload(r.Context(), files)
	if err != nil {
		s.writeServiceError(w, r, "upload banners", err)
		return
	}
	s.audit(r, "banners uploaded", "success", res.Success, "failed", len(res.Errors))

	status := http.StatusOK
	if res.Success == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) deleteBanner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.gallery.Delete(r.Context(), id); err != nil {
		s.writeServiceError(w, r, "delete banner", err)
		return
	}
	s.audit(r, "banner deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveBannerUp(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.gallery.MoveUp(r.Context(), id); err != nil {
		s.writeServiceError(w, r, "move banner up", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveBannerDown(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.gallery.MoveDown(r.Context(), id); err != nil {
		s.writeServiceError(w, r, "move banner down", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reorderBanners(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.From == nil || req.To == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "from and to are required", nil)
		return
	}
	if err := s.gallery.MoveToIndex(r.Context(), *req.From, *req.To); err != nil {
		s.writeServiceError(w, r, "reorder banners", err)
		return
	}
	s.audit(r, "banners reordered", "from", *req.From, "to", *req.To)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) changePin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.settings.ChangePin(r.Context(), req.Pin); err != nil {
		s.writeServiceError(w, r, "change pin", err)
		return
	}
	s.audit(r, "admin pin changed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updatePrivacyPolicy(w http.ResponseWriter, r *http.Request) {
	s.updatePolicy(w, r, "privacy", s.settings.UpdatePrivacyPolicy)
}

func (s *Server) updateThirdPartyPolicy(w http.ResponseWriter, r *http.Request) {
	s.updatePolicy(w, r, "third-party", s.settings.UpdateThirdPartyPolicy)
}

func (s *Server) updatePolicy(w http.ResponseWriter, r *http.Request, kind string, update func(context.Context, string) error) {
	var req policyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "text is required", nil)
		return
	}
	if err := update(r.Context(), *req.Text); err != nil {
		s.writeServiceError(w, r, "update "+kind+" policy", err)
		return
	}
	s.audit(r, "policy updated", "policy", kind, "length", len(*req.Text))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getStorageStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gallery.StorageStatus(r.Context()))
}

func (s *Server) streamBanners(w http.ResponseWriter, r *http.Request) {
	streamSnapshots(w, r, s.logger, "banners", s.gallery.Feed(), s.gallery.List)
}

func (s *Server) streamCustomers(w http.ResponseWriter, r *http.Request) {
	streamSnapshots(w, r, s.logger, "customers", s.leads.Feed(), s.leads.List)
}

// streamSnapshots patches the full collection into the client's signals,
// once on connect and again after every change, until the client leaves or
// the server shuts down.
// The subscription is taken before the initial read so no change between
// the two is lost.
func streamSnapshots[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, signal string, b *feed.Broker[T], list func(context.Context) ([]T, error)) {
	ctx, cancel := streamContext(r)
	defer cancel()
	updates := b.Stream(ctx)

	initial, err := list(ctx)
	if err != nil {
		logger.Error("stream initial snapshot", "signal", signal, "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "load "+signal+" failed", nil)
		return
	}

	sse := datastar.NewSSE(w, r)
	if err := sse.MarshalAndPatchSignals(map[string]any{signal: initial}); err != nil {
		logger.Debug("stream closed", "signal", signal, "err", err)
		return
	}
	logger.Debug("stream opened", "signal", signal, "request_id", middleware.GetReqID(ctx))

	for snapshot := range updates {
		if err := sse.MarshalAndPatchSignals(map[string]any{signal: snapshot}); err != nil {
			logger.Debug("stream closed", "signal", signal, "err", err)
			return
		}
	}
}

func (s *Server) audit(r *http.Request, msg string, args ...any) {
	actor := "unknown"
	if p, ok := PrincipalFromContext(r.Context()); ok {
		actor = p.ID
	}
	args = append(args, "actor", actor, "request_id", middleware.GetReqID(r.Context()))
	s.logger.Info(msg, args...)
}
