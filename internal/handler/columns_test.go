package handler

import (
	"net/http"
	"testing"

	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/service"
)

func TestGetColumns(t *testing.T) {
	st := seededStore(t, fixtureRecords())
	h := NewColumnsHandler(service.NewProfileService(st))

	c, rec := newRequest(t, http.MethodGet, "/api/columns", "")
	if err := h.GetColumns(c); err != nil {
		t.Fatalf("GetColumns failed: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp columnsResponse
	decodeBody(t, rec, &resp)

	host, ok := resp.Columns["remote_host"]
	if !ok {
		t.Fatal("expected a remote_host profile")
	}
	if host.DataType != model.ColumnTypeIPAddress {
		t.Errorf("expected ip_address, got %q", host.DataType)
	}
	if host.Cardinality != 31 {
		t.Errorf("expected 31 distinct hosts, got %d", host.Cardinality)
	}
	if host.TotalCount != 60 {
		t.Errorf("expected 60 values, got %d", host.TotalCount)
	}
	if resp.TimeRange.Earliest == "" || resp.TimeRange.Latest == "" {
		t.Errorf("expected a populated time range, got %+v", resp.TimeRange)
	}
}

func TestGetColumn(t *testing.T) {
	st := seededStore(t, fixtureRecords())
	h := NewColumnsHandler(service.NewProfileService(st))

	t.Run("Known_Column", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodGet, "/api/columns/remote_host", "")
		c.SetParamNames("name")
		c.SetParamValues("remote_host")
		if err := h.GetColumn(c); err != nil {
			t.Fatalf("GetColumn failed: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var profile model.ColumnMetadata
		decodeBody(t, rec, &profile)
		if profile.Name != "remote_host" {
			t.Errorf("expected remote_host, got %q", profile.Name)
		}
		if profile.Cardinality != 31 {
			t.Errorf("expected 31 distinct hosts, got %d", profile.Cardinality)
		}
	})

	t.Run("Unknown_Column", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodGet, "/api/columns/no_such_column", "")
		c.SetParamNames("name")
		c.SetParamValues("no_such_column")
		if err := h.GetColumn(c); err != nil {
			t.Fatalf("GetColumn failed: %v", err)
		}
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestAnalyzeColumnGroup(t *testing.T) {
	st := seededStore(t, fixtureRecords())
	h := NewColumnsHandler(service.NewProfileService(st))

	t.Run("Joint_Tuples", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodPost, "/api/columns/group", `{"columns":["remote_host","status_code"]}`)
		if err := h.AnalyzeColumnGroup(c); err != nil {
			t.Fatalf("AnalyzeColumnGroup failed: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp model.ColumnGroupAnalysis
		decodeBody(t, rec, &resp)
		if resp.TotalGroups != 31 {
			t.Errorf("expected 31 tuples, got %d", resp.TotalGroups)
		}
		if len(resp.Groups) == 0 {
			t.Fatal("expected grouped rows")
		}
		top := resp.Groups[0]
		if top.Frequency != 30 {
			t.Errorf("expected the probing host tuple on top with 30 hits, got %d", top.Frequency)
		}
		if top.Values["remote_host"] != "198.51.100.9" {
			t.Errorf("expected the probing host, got %v", top.Values["remote_host"])
		}
	})

	t.Run("Window_Excluding_All_Records", func(t *testing.T) {
		c, rec := newRequest(t, http.MethodPost, "/api/columns/group",
			`{"columns":["remote_host"],"start":"2023-10-11"}`)
		if err := h.AnalyzeColumnGroup(c); err != nil {
			t.Fatalf("AnalyzeColumnGroup failed: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp model.ColumnGroupAnalysis
		decodeBody(t, rec, &resp)
		if resp.TotalGroups != 0 {
			t.Errorf("expected no tuples outside the window, got %d", resp.TotalGroups)
		}
	})

	rejected := []struct {
		name string
		body string
	}{
		{"No_Columns", `{"columns":[]}`},
		{"Too_Many_Columns", `{"columns":["remote_host","status_code","path","method","protocol","hour"]}`},
		{"Unknown_Column", `{"columns":["no_such_column"]}`},
		{"Malformed_Start", `{"columns":["remote_host"],"start":"not-a-time"}`},
		{"Malformed_Body", `{"columns":`},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newRequest(t, http.MethodPost, "/api/columns/group", tt.body)
			if err := h.AnalyzeColumnGroup(c); err != nil {
				t.Fatalf("AnalyzeColumnGroup failed: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}
