package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
	"github.com/JonMunkholm/rosterbatch/internal/config"
	"github.com/JonMunkholm/rosterbatch/internal/history"
	"github.com/JonMunkholm/rosterbatch/internal/sheet"
	"github.com/JonMunkholm/rosterbatch/internal/storage"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Upload: config.UploadConfig{MaxFileSize: 1 << 20},
		Batch: config.BatchConfig{
			Strategy:     batch.StrategyFixed,
			ChunkSize:    2,
			StartRow:     10,
			UniqueColumn: "A",
			GroupColumn:  "C",
		},
		Rate:     config.RateLimitConfig{Enabled: false, RequestsPerMinute: 100, UploadLimit: 10},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

// xlsx builds a workbook in memory; the first row is the header.
func xlsx(t *testing.T, rows ...[]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellStr("Sheet1", cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type testEnv struct {
	server *Server
	cfg    *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config), opts batch.ServiceOptions) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	tmpl, err := sheet.NewTemplate(xlsx(t, []string{"Roster template"}))
	if err != nil {
		t.Fatal(err)
	}
	m, err := batch.ParseMapping([]batch.PairSpec{{Source: "A:C", Dest: "B:D"}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	engines := make(map[string]*batch.Engine)
	for name, p := range map[string]batch.Partitioner{
		batch.StrategyFixed: batch.FixedSize(cfg.Batch.ChunkSize),
		batch.StrategyGroup: batch.GroupBy(3),
	} {
		e, err := batch.New(batch.Config{Mapping: m, UniqueColumn: 1, StartRow: cfg.Batch.StartRow, Partitioner: p}, tmpl)
		if err != nil {
			t.Fatal(err)
		}
		engines[name] = e
	}

	opts.Reader = sheet.NewReader()
	if opts.Recorder == nil {
		opts.Recorder = history.NewMemoryStore(10)
	}
	svc, err := batch.NewService(engines, batch.StrategyFixed, opts)
	if err != nil {
		t.Fatal(err)
	}

	s := NewServer(svc, cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return &testEnv{server: s, cfg: cfg}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

// upload builds a multipart request; an empty fileName omits the file part.
func upload(t *testing.T, path, fileName string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func roster(t *testing.T) []byte {
	return xlsx(t,
		[]string{"ID", "Name", "Dept"},
		[]string{"E1", "Ann", "Sales"},
		[]string{"E2", "Bob", "Ops"},
		[]string{"E1", "Ann again", "Sales"},
		[]string{"E3", "Cid", "Sales"},
	)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestProcess_ReturnsArchive(t *testing.T) {
	env := newTestEnv(t, nil, batch.ServiceOptions{})

	rec := env.do(upload(t, "/api/process", "roster.xlsx", roster(t), map[string]string{"output": "march"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	h := rec.Header()
	if got := h.Get("Content-Type"); got != "application/zip" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := h.Get("Content-Disposition"); !strings.Contains(got, `filename="march.zip"`) {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := h.Get(headerTotalRows); got != "3" {
		t.Errorf("%s = %q, want 3", headerTotalRows, got)
	}
	if got := h.Get(headerFileCount); got != "2" {
		t.Errorf("%s = %q, want 2", headerFileCount, got)
	}
	if h.Get("X-Run-ID") == "" {
		t.Error("X-Run-ID header missing")
	}
	if got := h.Get("Content-Length"); got != strconv.Itoa(rec.Body.Len()) {
		t.Errorf("Content-Length = %q, body is %d bytes", got, rec.Body.Len())
	}

	if diff := cmp.Diff([]string{"output_1.xlsx", "output_2.xlsx"}, zipNames(t, rec.Body.Bytes())); diff != "" {
		t.Errorf("archive entries mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessSummary_GroupStrategy(t *testing.T) {
	env := newTestEnv(t, nil, batch.ServiceOptions{})

	rec := env.do(upload(t, "/api/process/summary", "roster.xlsx", roster(t), map[string]string{"strategy": "group"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ProcessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	want := []batch.FileCount{{Name: "Sales.xlsx", Count: 2}, {Name: "Ops.xlsx", Count: 1}}
	if diff := cmp.Diff(want, resp.Files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	if resp.Total != 3 || resp.Records != 4 || resp.Duplicates != 1 {
		t.Errorf("counts = %+v", resp)
	}
	if resp.Archive != "" {
		t.Errorf("Archive = %q, want empty without storage", resp.Archive)
	}

	// The run is now in history.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/runs/"+resp.RunID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET run status = %d", rec.Code)
	}
	var run batch.RunRecord
	json.NewDecoder(rec.Body).Decode(&run)
	if run.Strategy != batch.StrategyGroup || run.FileName != "roster.xlsx" {
		t.Errorf("run = %+v", run)
	}
}

func TestProcess_StoredArchive(t *testing.T) {
	store, err := storage.Open(context.Background(), "mem://", "")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	env := newTestEnv(t, nil, batch.ServiceOptions{Store: store})

	rec := env.do(upload(t, "/api/process/summary", "roster.xlsx", roster(t), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ProcessResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Archive != "/api/runs/"+resp.RunID+"/archive" {
		t.Fatalf("Archive = %q", resp.Archive)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, resp.Archive, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET archive status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, `filename="output.zip"`) {
		t.Errorf("Content-Disposition = %q", got)
	}
	if names := zipNames(t, rec.Body.Bytes()); len(names) != 2 {
		t.Errorf("archive entries = %v", names)
	}
}

func TestProcess_Errors(t *testing.T) {
	tests := []struct {
		name       string
		fileName   string
		data       []byte
		fields     map[string]string
		wantStatus int
		wantCode   string
	}{
		{"no file", "", nil, nil, http.StatusBadRequest, "FILE004"},
		{"csv upload", "roster.csv", []byte("ID,Name\nE1,Ann\n"), nil, http.StatusUnsupportedMediaType, "FILE003"},
		{"not a workbook", "roster.xlsx", []byte("plain text"), nil, http.StatusUnprocessableEntity, "FILE002"},
		{"unknown strategy", "roster.xlsx", nil, map[string]string{"strategy": "random"}, http.StatusBadRequest, "RUN006"},
		{"header only", "roster.xlsx", nil, map[string]string{}, http.StatusUnprocessableEntity, "FILE005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, batch.ServiceOptions{})
			data := tt.data
			if data == nil && tt.fileName != "" {
				data = xlsx(t, []string{"ID", "Name"})
			}

			rec := env.do(upload(t, "/api/process", tt.fileName, data, tt.fields))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decodeError(t, rec); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestProcess_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Upload.MaxFileSize = 512 }, batch.ServiceOptions{})

	rec := env.do(upload(t, "/api/process", "roster.xlsx", roster(t), nil))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "FILE001" {
		t.Errorf("code = %q, want FILE001", got.Code)
	}
}

func TestProcess_HTMLError(t *testing.T) {
	env := newTestEnv(t, nil, batch.ServiceOptions{})

	req := upload(t, "/api/process", "roster.csv", []byte("x"), nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := env.do(req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want html", ct)
	}
	if !strings.Contains(rec.Body.String(), "FILE003") {
		t.Error("error page does not show the support code")
	}
}

func TestRuns_NotFound(t *testing.T) {
	env := newTestEnv(t, nil, batch.ServiceOptions{})

	tests := []struct {
		path     string
		wantCode string
	}{
		{"/api/runs/nope", "RUN003"},
		{"/api/runs/nope/archive", "STO001"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusNotFound {
				t.Fatalf("status = %d, want 404", rec.Code)
			}
			if got := decodeError(t, rec); got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestListRuns(t *testing.T) {
	env := newTestEnv(t, nil, batch.ServiceOptions{})
	for i := 0; i < 3; i++ {
		if rec := env.do(upload(t, "/api/process/summary", "roster.xlsx", roster(t), nil)); rec.Code != http.StatusOK {
			t.Fatalf("process status = %d", rec.Code)
		}
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Runs []batch.RunRecord `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Runs) != 2 {
		t.Errorf("len(runs) = %d, want 2", len(body.Runs))
	}
}

func TestMapping(t *testing.T) {
	env := newTestEnv(t, nil, batch.ServiceOptions{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/mapping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp MappingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}

	want := MappingResponse{
		Pairs:           []batch.PairSpec{{Source: "A:C", Dest: "B:D"}},
		SourceOrder:     []string{"A:C"},
		Width:           3,
		UniqueColumn:    "A",
		GroupColumn:     "C",
		Normalize:       []string{},
		StartRow:        10,
		ChunkSize:       2,
		Strategies:      []string{batch.StrategyFixed, batch.StrategyGroup},
		DefaultStrategy: batch.StrategyFixed,
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthAndIndex(t *testing.T) {
	env := newTestEnv(t, nil, batch.ServiceOptions{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
	var health map[string]any
	json.NewDecoder(rec.Body).Decode(&health)
	if health["status"] != "ok" || health["storage"] != false {
		t.Errorf("health = %v", health)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("index status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`action="/api/process"`, `name="strategy"`, "A:C"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("CSP header missing")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("X-Frame-Options header missing")
	}
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	}, batch.ServiceOptions{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/mapping", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/mapping", nil)
	req.Header.Set("X-API-Key", "secret")
	if rec := env.do(req); rec.Code != http.StatusOK {
		t.Errorf("with key status = %d, want 200", rec.Code)
	}

	// The page and health check stay public.
	if rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestUploadRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.UploadLimit = 1
	}, batch.ServiceOptions{})

	if rec := env.do(upload(t, "/api/process/summary", "roster.xlsx", roster(t), nil)); rec.Code != http.StatusOK {
		t.Fatalf("first upload status = %d", rec.Code)
	}
	rec := env.do(upload(t, "/api/process/summary", "roster.xlsx", roster(t), nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status = %d, want 429", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "RATE001" {
		t.Errorf("code = %q, want RATE001", got.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// Reads are only subject to the global limit.
	if rec := env.do(httptest.NewRequest(http.MethodGet, "/api/mapping", nil)); rec.Code != http.StatusOK {
		t.Errorf("mapping status = %d, want 200", rec.Code)
	}
}

func TestProcess_Busy(t *testing.T) {
	limiter := batch.NewRunLimiter(1, 10*time.Millisecond)
	env := newTestEnv(t, nil, batch.ServiceOptions{Limiter: limiter})
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer limiter.Release()

	rec := env.do(upload(t, "/api/process", "roster.xlsx", roster(t), nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "RUN002" {
		t.Errorf("code = %q, want RUN002", got.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errNoFile, http.StatusBadRequest},
		{errFileTooBig, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusRequestTimeout},
		{batch.ErrArchiveNotFound, http.StatusNotFound},
		{errRateLimited, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRequestTimeout_SkipsProcessing(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.RequestTimeout = time.Nanosecond }, batch.ServiceOptions{})

	rec := env.do(upload(t, "/api/process/summary", "roster.xlsx", roster(t), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp ProcessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 3 {
		t.Errorf("Total = %d, want 3", resp.Total)
	}
}
