package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
	"github.com/felixgeelhaar/farol/pkg/domain/stage"
)

type fakeDashboard struct {
	snap       *application.Snapshot
	refreshErr error
	lastErr    error
	viewed     int
}

func (f *fakeDashboard) Current() (*application.Snapshot, error) {
	if f.snap == nil {
		return nil, application.ErrNoSnapshot
	}
	return f.snap, nil
}

func (f *fakeDashboard) View(threshold int) (*application.Snapshot, error) {
	f.viewed = threshold
	if f.snap == nil {
		return nil, application.ErrNoSnapshot
	}
	v := *f.snap
	v.Metrics.AgingThresholdDays = threshold
	return &v, nil
}

func (f *fakeDashboard) Refresh(ctx context.Context) (*application.Snapshot, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.snap, nil
}

func (f *fakeDashboard) Classification() stage.Classification {
	return stage.NewClassification(stage.Aliases{Doing: []string{"FAZENDO"}, Done: []string{"FEITO"}})
}

func (f *fakeDashboard) State() string    { return application.RefreshReady }
func (f *fakeDashboard) LastError() error { return f.lastErr }

func sampleSnapshot() *application.Snapshot {
	return &application.Snapshot{
		ID: "snap-1",
		Items: []analytics.WorkItem{
			{ID: "a", Name: "Deploy", Stage: "FAZENDO", Assignees: []string{"Ana"}},
			{ID: "b", Name: "Docs", Stage: "FEITO"},
			{ID: "c", Name: "Deploy docs", Stage: "FEITO"},
		},
		Metrics: analytics.DashboardMetrics{AgingThresholdDays: 7, HealthScore: 88, TotalItems: 3},
	}
}

func TestHandleMetrics(t *testing.T) {
	d := &fakeDashboard{snap: sampleSnapshot()}
	s := NewServer(d)

	got, err := s.handleMetrics(context.Background(), MetricsArgs{})
	if err != nil {
		t.Fatalf("handleMetrics: %v", err)
	}
	if m := got.(analytics.DashboardMetrics); m.HealthScore != 88 || m.AgingThresholdDays != 7 {
		t.Errorf("unexpected metrics %+v", m)
	}

	got, err = s.handleMetrics(context.Background(), MetricsArgs{AgingDays: 2})
	if err != nil {
		t.Fatal(err)
	}
	if d.viewed != 2 || got.(analytics.DashboardMetrics).AgingThresholdDays != 2 {
		t.Error("custom threshold not applied")
	}

	if _, err := s.handleMetrics(context.Background(), MetricsArgs{AgingDays: -1}); err == nil {
		t.Error("expected error for negative threshold")
	}
}

func TestHandleMetrics_NoData(t *testing.T) {
	s := NewServer(&fakeDashboard{})
	_, err := s.handleMetrics(context.Background(), MetricsArgs{})
	if err == nil || !strings.Contains(err.Error(), "farol_refresh") {
		t.Fatalf("expected friendly error, got %v", err)
	}
}

func TestHandleItems(t *testing.T) {
	s := NewServer(&fakeDashboard{snap: sampleSnapshot()})

	got, err := s.handleItems(context.Background(), ItemsArgs{Query: "deploy", Status: "done"})
	if err != nil {
		t.Fatal(err)
	}
	resp := got.(itemsResponse)
	if resp.Total != 3 || resp.Matched != 1 || resp.Items[0].ID != "c" {
		t.Errorf("unexpected response %+v", resp)
	}

	got, _ = s.handleItems(context.Background(), ItemsArgs{Limit: 2})
	if resp := got.(itemsResponse); len(resp.Items) != 2 || resp.Matched != 3 {
		t.Errorf("limit not applied: %+v", resp)
	}

	if _, err := s.handleItems(context.Background(), ItemsArgs{Status: "blocked"}); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestHandleRefresh(t *testing.T) {
	d := &fakeDashboard{snap: sampleSnapshot()}
	s := NewServer(d)

	msg, err := s.handleRefresh(context.Background(), struct{}{})
	if err != nil || !strings.Contains(msg, "snap-1") {
		t.Errorf("unexpected result %q %v", msg, err)
	}

	d.refreshErr = application.ErrStaleRefresh
	if _, err := s.handleRefresh(context.Background(), struct{}{}); err != nil {
		t.Errorf("stale refresh should not be an error: %v", err)
	}

	d.refreshErr = errors.New("HTTP 401")
	if _, err := s.handleRefresh(context.Background(), struct{}{}); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected refresh error, got %v", err)
	}
}

func TestHandleStatus(t *testing.T) {
	s := NewServer(&fakeDashboard{snap: sampleSnapshot(), lastErr: errors.New("boom")})
	got, err := s.handleStatus(context.Background(), struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	resp := got.(statusResponse)
	if resp.State != application.RefreshReady || resp.SnapshotID != "snap-1" || resp.Error != "boom" {
		t.Errorf("unexpected status %+v", resp)
	}
}

func TestSchemaDocument(t *testing.T) {
	data, err := schemaDocument()
	if err != nil {
		t.Fatal(err)
	}
	var resp schemaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SchemaVersion != SchemaVersion || len(resp.Tools) != 4 {
		t.Errorf("unexpected schema %+v", resp)
	}
}
