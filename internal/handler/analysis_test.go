package handler

import (
	"net/http"
	"testing"

	"apache-log-sentinel/internal/model"
)

func TestGetAbusePatterns(t *testing.T) {
	fix := newAnalysisFixture(t)
	h := NewAnalysisHandler(fix.analysis, fix.anomaly, nil, nil, nil)

	c, rec := newRequest(t, http.MethodGet, "/api/abuse-patterns", "")
	if err := h.GetAbusePatterns(c); err != nil {
		t.Fatalf("GetAbusePatterns failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var report model.AbuseReport
	decodeBody(t, rec, &report)

	if len(report.Scanning) != 1 {
		t.Fatalf("expected one scanning pattern, got %d", len(report.Scanning))
	}
	if report.Scanning[0].PatternType != model.PatternScanning {
		t.Errorf("expected pattern type scanning, got %q", report.Scanning[0].PatternType)
	}
	if got := len(report.BruteForce) + len(report.DDoS) + len(report.BotBehavior); got != 0 {
		t.Errorf("expected no findings from the other rules, got %d", got)
	}
}

func TestGetTopThreats(t *testing.T) {
	fix := newAnalysisFixture(t)
	h := NewAnalysisHandler(fix.analysis, fix.anomaly, nil, nil, nil)

	c, rec := newRequest(t, http.MethodGet, "/api/top-threats?limit=5", "")
	if err := h.GetTopThreats(c); err != nil {
		t.Fatalf("GetTopThreats failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var threats []model.AbusePattern
	decodeBody(t, rec, &threats)

	if len(threats) != 1 {
		t.Fatalf("expected one threat, got %d", len(threats))
	}
	if threats[0].PatternType != model.PatternScanning {
		t.Errorf("expected the scanning pattern on top, got %q", threats[0].PatternType)
	}
	if len(threats[0].AffectedIPs) == 0 || threats[0].AffectedIPs[0] != "198.51.100.9" {
		t.Errorf("expected the probing host as affected, got %v", threats[0].AffectedIPs)
	}
}

func TestGetAnomalies(t *testing.T) {
	fix := newAnalysisFixture(t)
	h := NewAnalysisHandler(fix.analysis, fix.anomaly, nil, nil, nil)

	t.Run("Full_Window", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodGet, "/api/anomalies", "")
		if err := h.GetAnomalies(c); err != nil {
			t.Fatalf("GetAnomalies failed: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var report model.AnomalyReport
		decodeBody(t, rec, &report)

		if len(report.Alerts) != 2 {
			t.Fatalf("expected two alerts, got %d: %+v", len(report.Alerts), report.Alerts)
		}
		columns := map[string]bool{}
		for _, alert := range report.Alerts {
			columns[alert.Column] = true
			if alert.Severity != model.SeverityHigh {
				t.Errorf("expected high severity, got %q for %s", alert.Severity, alert.Column)
			}
		}
		if !columns["remote_host"] || !columns["status_code"] {
			t.Errorf("expected source and status alerts, got columns %v", columns)
		}
		if len(report.DegradedRules) != 0 {
			t.Errorf("expected no degraded rules, got %v", report.DegradedRules)
		}
	})

	t.Run("Window_Excluding_All_Records", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodGet, "/api/anomalies?start=2023-10-11", "")
		if err := h.GetAnomalies(c); err != nil {
			t.Fatalf("GetAnomalies failed: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var report model.AnomalyReport
		decodeBody(t, rec, &report)
		if len(report.Alerts) != 0 {
			t.Errorf("expected no alerts outside the window, got %d", len(report.Alerts))
		}
	})

	t.Run("Malformed_Window", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodGet, "/api/anomalies?start=not-a-time", "")
		if err := h.GetAnomalies(c); err != nil {
			t.Fatalf("GetAnomalies failed: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestGetSecuritySummary(t *testing.T) {
	fix := newAnalysisFixture(t)
	h := NewAnalysisHandler(fix.analysis, fix.anomaly, nil, nil, nil)

	c, rec := newRequest(t, http.MethodGet, "/api/security-summary", "")
	if err := h.GetSecuritySummary(c); err != nil {
		t.Fatalf("GetSecuritySummary failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var summary model.SecuritySummary
	decodeBody(t, rec, &summary)

	if summary.TotalAlerts != 2 {
		t.Errorf("expected two alerts, got %d", summary.TotalAlerts)
	}
	if summary.HighCount != 2 || summary.CriticalCount != 0 {
		t.Errorf("expected 2 high / 0 critical, got %d / %d", summary.HighCount, summary.CriticalCount)
	}
	if len(summary.TopAlerts) != 2 {
		t.Errorf("expected both alerts in the top list, got %d", len(summary.TopAlerts))
	}
	typeTotal := 0
	for _, n := range summary.AlertTypes {
		typeTotal += n
	}
	if typeTotal != 2 {
		t.Errorf("expected alert types to cover both alerts, got %d", typeTotal)
	}
	if len(summary.Recommendations) == 0 {
		t.Error("expected recommendations from the alerts")
	}
}

func TestGetRuns(t *testing.T) {
	fix := newAnalysisFixture(t)
	h := NewAnalysisHandler(fix.analysis, fix.anomaly, nil, nil, nil)

	c, rec := newRequest(t, http.MethodGet, "/api/runs", "")
	if err := h.GetRuns(c); err != nil {
		t.Fatalf("GetRuns failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var runs []model.AnalysisRun
	decodeBody(t, rec, &runs)

	if len(runs) != 1 {
		t.Fatalf("expected one recorded run, got %d", len(runs))
	}
	if runs[0].TriggeredBy != model.RunTriggerStartup {
		t.Errorf("expected the startup run, got %q", runs[0].TriggeredBy)
	}
	if runs[0].ParsedRecords != 60 {
		t.Errorf("expected 60 parsed records, got %d", runs[0].ParsedRecords)
	}
}

func TestReload(t *testing.T) {
	t.Run("Reingests_And_Records_Run", func(t *testing.T) {
		fix := newAnalysisFixture(t)
		h := NewAnalysisHandler(fix.analysis, fix.anomaly, nil, nil, []string{fix.logPath})

		c, rec := newRequest(t, http.MethodPost, "/api/reload", "")
		if err := h.Reload(c); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp reloadResponse
		decodeBody(t, rec, &resp)
		if resp.Run == nil {
			t.Fatal("expected the run in the response")
		}
		if resp.Run.TriggeredBy != model.RunTriggerAPI {
			t.Errorf("expected trigger %q, got %q", model.RunTriggerAPI, resp.Run.TriggeredBy)
		}
		if resp.Run.ParsedRecords != 60 {
			t.Errorf("expected 60 parsed records, got %d", resp.Run.ParsedRecords)
		}
		if got := len(fix.analysis.Runs()); got != 2 {
			t.Errorf("expected two recorded runs after reload, got %d", got)
		}
	})

	t.Run("No_Files_Configured", func(t *testing.T) {
		fix := newAnalysisFixture(t)
		h := NewAnalysisHandler(fix.analysis, fix.anomaly, nil, nil, nil)

		c, rec := newRequest(t, http.MethodPost, "/api/reload", "")
		if err := h.Reload(c); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without configured files, got %d", rec.Code)
		}
	})

	t.Run("Missing_File_Keeps_Previous_Results", func(t *testing.T) {
		fix := newAnalysisFixture(t)
		h := NewAnalysisHandler(fix.analysis, fix.anomaly, nil, nil, []string{"/nonexistent/access.log"})

		c, rec := newRequest(t, http.MethodPost, "/api/reload", "")
		if err := h.Reload(c); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500 for a missing file, got %d", rec.Code)
		}
		if fix.analysis.RecordCount() != 60 {
			t.Errorf("previous results should survive a failed reload, got %d records", fix.analysis.RecordCount())
		}
	})
}
