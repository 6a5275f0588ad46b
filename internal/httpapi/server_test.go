package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/bannerdesk/internal/config"
	"github.com/example/bannerdesk/internal/export"
	"github.com/example/bannerdesk/internal/gallery"
	"github.com/example/bannerdesk/internal/leads"
	"github.com/example/bannerdesk/internal/media"
	"github.com/example/bannerdesk/internal/notify"
	"github.com/example/bannerdesk/internal/site"
	"github.com/example/bannerdesk/internal/store"
	"github.com/example/bannerdesk/migrations"
)

type testEnv struct {
	handler http.Handler
	store   *store.Store
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "bannerdesk.db")
	if err := migrations.Up(config.DriverSQLite, dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db, err := store.Open(config.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.New(db)

	cfg := &config.Config{
		DBDriver:        config.DriverSQLite,
		DBDSN:           dsn,
		AuthMode:        config.AuthPIN,
		SessionSecret:   testSecret,
		SessionTTL:      time.Hour,
		MaxRequestBytes: config.DefaultMaxRequestBytes,
		Timezone:        "UTC",
		SwaggerUIPath:   "/swagger",
		OpenAPIPath:     "/openapi.yaml",
	}
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewRouter(cfg, Deps{
		Ready:    st,
		Gallery:  gallery.NewService(st, media.NewEncoder(), gallery.WithLogger(logger)),
		Leads:    leads.NewService(st, notify.Nop{}, logger),
		Settings: site.New(st),
	}, logger)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return &testEnv{handler: h, store: st}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, pin string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/admin/login", "", loginRequest{Pin: pin})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decode(t, rec, &resp)
	if resp.Token == "" {
		t.Fatalf("login returned no token")
	}
	return resp.Token
}

type upload struct {
	name        string
	contentType string
	data        []byte
}

func (e *testEnv) upload(t *testing.T, token string, files ...upload) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/banners", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) banners(t *testing.T) []store.Image {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/banners", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list banners: expected 200, got %d", rec.Code)
	}
	var resp bannersResponse
	decode(t, rec, &resp)
	return resp.Banners
}

func pngUpload(t *testing.T, name string) upload {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 50))
	for y := range 50 {
		for x := range 40 {
			img.Set(x, y, color.NRGBA{R: uint8(x * 6), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return upload{name: name, contentType: "image/png", data: buf.Bytes()}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func sourceNames(images []store.Image) []string {
	names := make([]string, len(images))
	for i, img := range images {
		names[i] = img.SourceFileName
	}
	return names
}

func TestProbesAndDocs(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := env.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
	rec := env.do(t, http.MethodGet, "/openapi.yaml", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/admin/banners/reorder") {
		t.Fatalf("openapi: %d", rec.Code)
	}
}

func TestAdminRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, path := range []string{"/api/admin/customers", "/api/admin/customers/export", "/api/admin/storage-status"} {
		if rec := env.do(t, http.MethodGet, path, "", nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestPinLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodPost, "/api/admin/login", "", loginRequest{Pin: "0000"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong pin: expected 401, got %d", rec.Code)
	}
	token := env.login(t, site.DefaultPin)

	if rec := env.do(t, http.MethodPut, "/api/admin/pin", token, pinRequest{Pin: ""}); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty pin: expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/admin/pin", token, pinRequest{Pin: "1234"}); rec.Code != http.StatusNoContent {
		t.Fatalf("change pin: expected 204, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/admin/login", "", loginRequest{Pin: site.DefaultPin}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old pin: expected 401, got %d", rec.Code)
	}
	env.login(t, "1234")

	// An existing session outlives the PIN change.
	if rec := env.do(t, http.MethodGet, "/api/admin/customers", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("old session: expected 200, got %d", rec.Code)
	}
}

func TestLoginSetsCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/admin/login", "", loginRequest{Pin: site.DefaultPin})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			session = c
		}
	}
	if session == nil || !session.HttpOnly || session.Value == "" {
		t.Fatalf("expected http-only session cookie, got %+v", session)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/customers", nil)
	req.AddCookie(session)
	out := httptest.NewRecorder()
	env.handler.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("cookie session: expected 200, got %d", out.Code)
	}

	logout := env.do(t, http.MethodPost, "/api/admin/logout", "", nil)
	if logout.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", logout.Code)
	}
}

func TestUploadAndReorderBanners(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, site.DefaultPin)

	rec := env.upload(t, token, pngUpload(t, "a.png"), pngUpload(t, "b.png"), pngUpload(t, "c.png"))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res gallery.UploadResult
	decode(t, rec, &res)
	if res.Success != 3 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	images := env.banners(t)
	if got := strings.Join(sourceNames(images), ","); got != "c.png,b.png,a.png" {
		t.Fatalf("initial order = %s", got)
	}
	if images[0].OrderKey != 3 || images[2].OrderKey != 1 {
		t.Fatalf("unexpected keys %d..%d", images[0].OrderKey, images[2].OrderKey)
	}
	if !strings.HasPrefix(images[0].Content, media.DataURLPrefix) || images[0].Alt != "배너 이미지 3" {
		t.Fatalf("unexpected stored banner %+v", images[0].Alt)
	}

	a := images[2].ID
	if rec := env.do(t, http.MethodPost, "/api/admin/banners/"+a+"/up", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("move up: expected 204, got %d", rec.Code)
	}
	if got := strings.Join(sourceNames(env.banners(t)), ","); got != "c.png,a.png,b.png" {
		t.Fatalf("after move up = %s", got)
	}

	if rec := env.do(t, http.MethodPost, "/api/admin/banners/reorder", token, map[string]int{"from": 2, "to": 0}); rec.Code != http.StatusNoContent {
		t.Fatalf("reorder: expected 204, got %d", rec.Code)
	}
	if got := strings.Join(sourceNames(env.banners(t)), ","); got != "b.png,c.png,a.png" {
		t.Fatalf("after reorder = %s", got)
	}

	if rec := env.do(t, http.MethodPost, "/api/admin/banners/reorder", token, map[string]int{"from": 1}); rec.Code != http.StatusBadRequest {
		t.Fatalf("reorder without to: expected 400, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/admin/banners/missing/down", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown move: expected 404, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/api/admin/banners/"+a, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/admin/banners/"+a, token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
	if got := len(env.banners(t)); got != 2 {
		t.Fatalf("expected 2 banners, got %d", got)
	}
}

func TestUploadPartialAndTotalFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, site.DefaultPin)

	bad := upload{name: "notes.txt", contentType: "text/plain", data: []byte("hello")}
	rec := env.upload(t, token, pngUpload(t, "ok.png"), bad)
	if rec.Code != http.StatusOK {
		t.Fatalf("partial: expected 200, got %d", rec.Code)
	}
	var res gallery.UploadResult
	decode(t, rec, &res)
	if res.Success != 1 || len(res.Errors) != 1 || res.Errors[0].FileName != "notes.txt" {
		t.Fatalf("unexpected partial result %+v", res)
	}

	rec = env.upload(t, token, bad)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("total failure: expected 422, got %d", rec.Code)
	}

	rec = env.upload(t, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("no files: expected 400, got %d", rec.Code)
	}
}

func TestUploadBodyLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.MaxRequestBytes = 1024 })
	token := env.login(t, site.DefaultPin)

	big := upload{name: "big.png", contentType: "image/png", data: bytes.Repeat([]byte{1}, 4096)}
	if rec := env.upload(t, token, big); rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestLeadsListAndExport(t *testing.T) {
	env := newTestEnv(t, nil)

	sub := leads.Submission{
		Name:           "  홍길동 ",
		Phone:          "010-1234-5678",
		PhoneOption:    "갤럭시 Z폴드 7",
		CarrierOption:  "KT 번호이동",
		PrivacyConsent: true,
	}
	rec := env.do(t, http.MethodPost, "/api/leads", "", sub)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created store.Customer
	decode(t, rec, &created)
	if created.ID == "" || created.Name != "홍길동" {
		t.Fatalf("unexpected lead %+v", created)
	}

	token := env.login(t, site.DefaultPin)
	rec = env.do(t, http.MethodGet, "/api/admin/customers", token, nil)
	var list customersResponse
	decode(t, rec, &list)
	if len(list.Customers) != 1 || list.Customers[0].ID != created.ID {
		t.Fatalf("unexpected customers %+v", list.Customers)
	}

	rec = env.do(t, http.MethodGet, "/api/admin/customers/export", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentType {
		t.Fatalf("content type = %q", ct)
	}
	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	if err != nil || disposition != "attachment" {
		t.Fatalf("content disposition = %q: %v", rec.Header().Get("Content-Disposition"), err)
	}
	if name := params["filename"]; !strings.HasPrefix(name, "고객데이터_") || !strings.HasSuffix(name, ".xlsx") {
		t.Fatalf("download name = %q", name)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "홍길동" || rows[1][4] != "KT 번호이동" || rows[1][6] != "미동의" {
		t.Fatalf("unexpected rows %v", rows)
	}

	if rec := env.do(t, http.MethodDelete, "/api/admin/customers/"+created.ID, token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/admin/customers/"+created.ID, token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestLeadRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.LeadRatePerMinute = 1 })
	if rec := env.do(t, http.MethodPost, "/api/leads", "", leads.Submission{Name: "a"}); rec.Code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/leads", "", leads.Submission{Name: "b"}); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second: expected 429, got %d", rec.Code)
	}
}

func TestLeadRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPoliciesAndOptions(t *testing.T) {
	env := newTestEnv(t, nil)

	var policies policiesResponse
	decode(t, env.do(t, http.MethodGet, "/api/policies", "", nil), &policies)
	if policies.Privacy != site.DefaultPrivacyPolicy || policies.ThirdParty != site.DefaultThirdPartyPolicy {
		t.Fatalf("expected default policies")
	}

	token := env.login(t, site.DefaultPin)
	if rec := env.do(t, http.MethodPut, "/api/admin/policies/privacy", token, map[string]string{"text": "new privacy"}); rec.Code != http.StatusNoContent {
		t.Fatalf("update privacy: expected 204, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/admin/policies/third-party", token, map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing text: expected 400, got %d", rec.Code)
	}
	decode(t, env.do(t, http.MethodGet, "/api/policies", "", nil), &policies)
	if policies.Privacy != "new privacy" || policies.ThirdParty != site.DefaultThirdPartyPolicy {
		t.Fatalf("unexpected policies %+v", policies)
	}

	var catalog Catalog
	decode(t, env.do(t, http.MethodGet, "/api/options", "", nil), &catalog)
	if len(catalog.PhoneOptions) != 2 || len(catalog.CarrierOptions) != 5 {
		t.Fatalf("unexpected catalog %+v", catalog)
	}
}

func TestStorageStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, site.DefaultPin)

	var status gallery.StorageStatus
	decode(t, env.do(t, http.MethodGet, "/api/admin/storage-status", token, nil), &status)
	if !status.IsReady || !status.CanUpload || !status.CanDelete || status.Error != "" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestBannerStreamPushesSnapshots(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t, site.DefaultPin)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/banners/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	lines.Buffer(make([]byte, 0, 64*1024), 8<<20)
	waitFor := func(needle string) {
		t.Helper()
		for lines.Scan() {
			if strings.Contains(lines.Text(), needle) {
				return
			}
		}
		t.Fatalf("stream ended before %q: %v", needle, lines.Err())
	}

	waitFor(`"banners"`)
	if rec := env.upload(t, token, pngUpload(t, "late.png")); rec.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", rec.Code)
	}
	waitFor(`"sourceFileName":"late.png"`)
}

func TestShutdownEndsOpenStreams(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewUnstartedServer(env.handler)
	srv.Config = NewHTTPServer("", env.handler)
	srv.Start()
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/banners/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	lines.Buffer(make([]byte, 0, 64*1024), 8<<20)
	opened := false
	for lines.Scan() {
		if strings.Contains(lines.Text(), `"banners"`) {
			opened = true
			break
		}
	}
	if !opened {
		t.Fatalf("stream ended before first snapshot: %v", lines.Err())
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	if err := srv.Config.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown waited on the open stream: %v", err)
	}
	for lines.Scan() {
	}
	if ctx.Err() != nil {
		t.Fatalf("stream body did not end after shutdown")
	}
}
