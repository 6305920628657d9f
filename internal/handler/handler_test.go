package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"apache-log-sentinel/internal/ingest"
	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/parser"
	"apache-log-sentinel/internal/service"
	"apache-log-sentinel/internal/store"
)

// newRequest builds an echo context and response recorder for one handler
// call. A non-empty body is sent as JSON.
func newRequest(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func fixtureRecord(host, path string, status int) model.LogRecord {
	ts := time.Date(2023, 10, 10, 13, 55, 36, 0, time.UTC)
	agent := "Mozilla/5.0"
	size := int64(512)

	ext := model.NoExtension
	if idx := strings.LastIndex(path, "."); idx != -1 {
		ext = path[idx+1:]
	}

	return model.LogRecord{
		RemoteHost:    host,
		Timestamp:     ts,
		RequestLine:   "GET " + path + " HTTP/1.1",
		StatusCode:    status,
		ResponseSize:  &size,
		UserAgent:     &agent,
		Method:        "GET",
		Path:          path,
		Protocol:      "HTTP/1.1",
		Hour:          ts.Hour(),
		Date:          ts.Format("2006-01-02"),
		FileExtension: ext,
	}
}

// fixtureRecords is one probing host walking distinct missing paths plus
// background traffic from thirty other hosts.
func fixtureRecords() []model.LogRecord {
	var records []model.LogRecord
	for i := 0; i < 30; i++ {
		records = append(records, fixtureRecord("198.51.100.9", fmt.Sprintf("/probe-%03d", i), 404))
	}
	for i := 0; i < 30; i++ {
		records = append(records, fixtureRecord(fmt.Sprintf("10.0.0.%d", i), "/index.html", 200))
	}
	return records
}

func seededStore(t *testing.T, records []model.LogRecord) *store.MemStore {
	t.Helper()
	st := store.NewMemStore()
	if err := st.Insert(context.Background(), records); err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}
	return st
}

// analysisFixture wires real services over one ingested access log, the same
// traffic shape as fixtureRecords plus one unparseable line.
type analysisFixture struct {
	store    *store.MemStore
	analysis *service.AnalysisService
	anomaly  *service.AnomalyService
	logPath  string
}

func newAnalysisFixture(t *testing.T) *analysisFixture {
	t.Helper()

	st := store.NewMemStore()
	p, err := parser.Resolve("combined")
	if err != nil {
		t.Fatalf("Failed to resolve combined format: %v", err)
	}
	anomaly := service.NewAnomalyService(st)
	analysis := service.NewAnalysisService(st, ingest.NewIngester(p), service.NewAbuseService(), anomaly)

	lines := []string{"not a log line"}
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf(`198.51.100.9 - - [10/Oct/2023:13:55:36 +0000] "GET /probe-%03d HTTP/1.1" 404 512 "-" "Mozilla/5.0"`, i))
	}
	for i := 0; i < 30; i++ {
		lines = append(lines, fmt.Sprintf(`10.0.0.%d - - [10/Oct/2023:13:55:36 +0000] "GET /index.html HTTP/1.1" 200 512 "-" "Mozilla/5.0"`, i))
	}

	logPath := filepath.Join(t.TempDir(), "access.log")
	if err := os.WriteFile(logPath, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write access log: %v", err)
	}

	if _, err := analysis.Run(context.Background(), []string{logPath}, model.RunTriggerStartup); err != nil {
		t.Fatalf("Seed run failed: %v", err)
	}

	return &analysisFixture{store: st, analysis: analysis, anomaly: anomaly, logPath: logPath}
}
