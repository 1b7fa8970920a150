// Package dashboard serves the board metrics as a web page and a JSON API.
package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
	"github.com/felixgeelhaar/farol/pkg/domain/stage"
)

//go:embed templates/*
var templatesFS embed.FS

// DataProvider provides snapshots for the dashboard.
type DataProvider interface {
	Current() (*application.Snapshot, error)
	View(threshold int) (*application.Snapshot, error)
	Refresh(ctx context.Context) (*application.Snapshot, error)
	Subscribe(fn func(*application.Snapshot)) func()
	Classification() stage.Classification
	State() string
	LastError() error
}

// Server is the dashboard HTTP server.
type Server struct {
	addr     string
	provider DataProvider
	logger   *charmlog.Logger
	server   *http.Server
	tmpl     *template.Template
	mux      *http.ServeMux
}

// NewServer creates a new dashboard server.
func NewServer(addr string, provider DataProvider, logger *charmlog.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"stageClass": stageClass,
		"formatTime": formatTime,
		"formatDate": formatDate,
		"json":       toJSON,
		"barWidth":   barWidth,
		"barHeight":  barHeight,
		"weekday":    weekdayLabel,
		"join":       strings.Join,
		"add":        func(a, b int) int { return a + b },
		"mul":        func(a, b int) int { return a * b },
		"deref":      deref,
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		addr:     addr,
		provider: provider,
		logger:   logger,
		tmpl:     tmpl,
		mux:      http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/metrics", s.handleAPIMetrics)
	s.mux.HandleFunc("GET /api/items", s.handleAPIItems)
	s.mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	s.mux.HandleFunc("POST /api/refresh", s.handleAPIRefresh)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	return s, nil
}

// Handle mounts an extra handler, such as the event stream.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the dashboard server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	s.logger.Info("dashboard server starting", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// PageData holds data for template rendering.
type PageData struct {
	Title      string
	Snapshot   *application.Snapshot
	SnapshotID string
	Metrics    analytics.DashboardMetrics
	Items      []ItemView
	Filter     FilterView
	Assignees  []string
	Lists      []string
	Statuses   []stage.Category
	DailyMax   int
	LeadMax    int
	State      string
	Error      string
}

// FilterView echoes the active filter back into the form.
type FilterView struct {
	Query     string
	Assignee  string
	List      string
	Status    string
	Threshold int
}

// ItemView is one table row.
type ItemView struct {
	analytics.WorkItem
	Category stage.Category
	Aged     bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := PageData{Title: "Farol", Statuses: stage.Categories(), State: s.provider.State()}

	threshold, filter, err := parseQuery(r)
	if err != nil {
		data.Error = err.Error()
	}

	snap, err := s.snapshot(threshold)
	if err != nil {
		if data.Error == "" {
			data.Error = describe(err, s.provider.LastError())
		}
		s.render(w, http.StatusOK, "index.html", data)
		return
	}

	cls := s.provider.Classification()
	data.Snapshot = snap
	data.SnapshotID = snap.ID
	data.Metrics = snap.Metrics
	data.Filter = FilterView{
		Query:     filter.Query,
		Assignee:  filter.Assignee,
		List:      filter.List,
		Status:    string(filter.Status),
		Threshold: snap.Threshold(),
	}
	data.Assignees, data.Lists = facets(snap.Items)
	for _, item := range filter.Apply(snap.Items, cls) {
		data.Items = append(data.Items, ItemView{
			WorkItem: item,
			Category: cls.Classify(item.Stage),
			Aged:     item.AgingDays >= snap.Threshold(),
		})
	}
	for _, n := range snap.Metrics.DailyDone {
		data.DailyMax = max(data.DailyMax, n)
	}
	for _, l := range snap.Metrics.LeadByAssignee {
		data.LeadMax = max(data.LeadMax, l.MeanLeadDays)
	}

	s.render(w, http.StatusOK, "index.html", data)
}

// MetricsResponse is the /api/metrics payload.
type MetricsResponse struct {
	SnapshotID  string                     `json:"snapshot_id"`
	GeneratedAt time.Time                  `json:"generated_at"`
	FetchedAt   time.Time                  `json:"fetched_at"`
	Metrics     analytics.DashboardMetrics `json:"metrics"`
}

func (s *Server) handleAPIMetrics(w http.ResponseWriter, r *http.Request) {
	threshold, _, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := s.snapshot(threshold)
	if err != nil {
		s.writeSnapshotError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metricsResponse(snap))
}

// ItemsResponse is the /api/items payload.
type ItemsResponse struct {
	SnapshotID string               `json:"snapshot_id"`
	Total      int                  `json:"total"`
	Items      []analytics.WorkItem `json:"items"`
}

func (s *Server) handleAPIItems(w http.ResponseWriter, r *http.Request) {
	threshold, filter, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := s.snapshot(threshold)
	if err != nil {
		s.writeSnapshotError(w, err)
		return
	}

	items := filter.Apply(snap.Items, s.provider.Classification())
	if items == nil {
		items = []analytics.WorkItem{}
	}
	writeJSON(w, http.StatusOK, ItemsResponse{
		SnapshotID: snap.ID,
		Total:      len(snap.Items),
		Items:      items,
	})
}

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	State      string `json:"state"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{State: s.provider.State()}
	if snap, err := s.provider.Current(); err == nil {
		resp.SnapshotID = snap.ID
	}
	if err := s.provider.LastError(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.provider.Refresh(r.Context())
	if errors.Is(err, application.ErrStaleRefresh) {
		snap, err = s.provider.Current()
	}
	if err != nil {
		s.logger.Warn("manual refresh failed", "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, metricsResponse(snap))
}

func (s *Server) snapshot(threshold int) (*application.Snapshot, error) {
	if threshold > 0 {
		return s.provider.View(threshold)
	}
	return s.provider.Current()
}

func (s *Server) writeSnapshotError(w http.ResponseWriter, err error) {
	if errors.Is(err, application.ErrNoSnapshot) {
		writeError(w, http.StatusServiceUnavailable, errors.New(describe(err, s.provider.LastError())))
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template error", "template", name, "err", err)
	}
}

func metricsResponse(snap *application.Snapshot) MetricsResponse {
	return MetricsResponse{
		SnapshotID:  snap.ID,
		GeneratedAt: snap.GeneratedAt,
		FetchedAt:   snap.FetchedAt,
		Metrics:     snap.Metrics,
	}
}

// parseQuery reads the aging threshold and table filter from the query
// string. A missing or zero aging value means the configured default.
func parseQuery(r *http.Request) (int, analytics.ItemFilter, error) {
	q := r.URL.Query()
	filter := analytics.ItemFilter{
		Query:    q.Get("q"),
		Assignee: q.Get("assignee"),
		List:     q.Get("list"),
	}

	var errs []error
	if status := strings.TrimSpace(q.Get("status")); status != "" {
		cat, err := stage.ParseCategory(status)
		if err != nil {
			errs = append(errs, err)
		}
		filter.Status = cat
	}

	threshold := 0
	if raw := strings.TrimSpace(q.Get("aging")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("invalid aging threshold: %q", raw))
		} else {
			threshold = n
		}
	}
	return threshold, filter, errors.Join(errs...)
}

func facets(items []analytics.WorkItem) ([]string, []string) {
	assignees := map[string]struct{}{}
	lists := map[string]struct{}{}
	for _, item := range items {
		for _, a := range item.Assignees {
			assignees[a] = struct{}{}
		}
		if item.Stage != "" {
			lists[item.Stage] = struct{}{}
		}
	}
	return sortedKeys(assignees), sortedKeys(lists)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func describe(err, last error) string {
	if errors.Is(err, application.ErrNoSnapshot) && last != nil {
		return fmt.Sprintf("%v: %v", err, last)
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Template helper functions
func stageClass(c stage.Category) string {
	switch c {
	case stage.Backlog:
		return "stage-backlog"
	case stage.Doing:
		return "stage-doing"
	case stage.Waiting:
		return "stage-waiting"
	case stage.Done:
		return "stage-done"
	default:
		return "stage-unmapped"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func deref(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

// barWidth scales value against maxValue into a 0-100 percentage.
func barWidth(value, maxValue int) int {
	if maxValue <= 0 || value <= 0 {
		return 0
	}
	return value * 100 / maxValue
}

// barHeight scales value into the chart's drawable height.
func barHeight(value, maxValue, height int) int {
	if maxValue <= 0 || value <= 0 {
		return 0
	}
	return value * height / maxValue
}

var weekdayLabels = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func weekdayLabel(i int) string {
	if i < 0 || i >= len(weekdayLabels) {
		return ""
	}
	return weekdayLabels[i]
}

func toJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
