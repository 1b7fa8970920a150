// Package mcp exposes dashboard metrics to MCP clients.
package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
	"github.com/felixgeelhaar/farol/pkg/domain/stage"
	"github.com/felixgeelhaar/mcp-go"
)

// Dashboard is the application surface the tools read.
type Dashboard interface {
	Current() (*application.Snapshot, error)
	View(threshold int) (*application.Snapshot, error)
	Refresh(ctx context.Context) (*application.Snapshot, error)
	Classification() stage.Classification
	State() string
	LastError() error
}

type Server struct {
	mcpServer *mcp.Server
	dashboard Dashboard
}

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

// mcpErr returns a user-friendly error for MCP clients.
func mcpErr(friendly string) error {
	return fmt.Errorf("%s", friendly)
}

func NewServer(dashboard Dashboard) *Server {
	info := mcp.ServerInfo{
		Name:    "farol",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("Farol MCP Server"),
			mcp.WithDescription("Farol exposes Trello board flow metrics: aging, lead time, bypass rate and health score."),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use farol_metrics for the board summary, farol_items to list cards, and farol_refresh to pull fresh data."),
		),
		dashboard: dashboard,
	}

	s.registerTools()
	s.registerSchemaResource()
	return s
}

type MetricsArgs struct {
	AgingDays int `json:"aging_days,omitempty" jsonschema:"description=Aging threshold in days (defaults to the configured value)"`
}

type ItemsArgs struct {
	Query     string `json:"query,omitempty" jsonschema:"description=Substring of the card name"`
	Assignee  string `json:"assignee,omitempty" jsonschema:"description=Substring of an assignee name"`
	List      string `json:"list,omitempty" jsonschema:"description=Substring of the current list name"`
	Status    string `json:"status,omitempty" jsonschema:"description=Stage category: backlog, doing, waiting or done"`
	AgingDays int    `json:"aging_days,omitempty" jsonschema:"description=Aging threshold in days used to flag aged cards"`
	Limit     int    `json:"limit,omitempty" jsonschema:"description=Maximum number of cards to return"`
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("farol_metrics").
		Description("Get the board metrics: stage counts, completions, aged cards, bypass rate, lead time and health score").
		Handler(s.handleMetrics)

	s.mcpServer.Tool("farol_items").
		Description("List tracked cards with lead time, aging and bypass flags, optionally filtered").
		Handler(s.handleItems)

	s.mcpServer.Tool("farol_refresh").
		Description("Fetch fresh data from Trello and recompute the metrics").
		Handler(s.handleRefresh)

	s.mcpServer.Tool("farol_status").
		Description("Report whether the dashboard data is loading, ready or failed").
		Handler(s.handleStatus)
}

func (s *Server) snapshot(threshold int) (*application.Snapshot, error) {
	if threshold < 0 {
		return nil, mcpErr("aging_days must not be negative.")
	}
	var (
		snap *application.Snapshot
		err  error
	)
	if threshold > 0 {
		snap, err = s.dashboard.View(threshold)
	} else {
		snap, err = s.dashboard.Current()
	}
	if errors.Is(err, application.ErrNoSnapshot) {
		return nil, mcpErr("No data loaded yet. Run farol_refresh first.")
	}
	if err != nil {
		return nil, mcpErr("Failed to compute metrics.")
	}
	return snap, nil
}

func (s *Server) handleMetrics(ctx context.Context, args MetricsArgs) (any, error) {
	snap, err := s.snapshot(args.AgingDays)
	if err != nil {
		return nil, err
	}
	return snap.Metrics, nil
}

type itemsResponse struct {
	SnapshotID string               `json:"snapshot_id"`
	Total      int                  `json:"total"`
	Matched    int                  `json:"matched"`
	Items      []analytics.WorkItem `json:"items"`
}

func (s *Server) handleItems(ctx context.Context, args ItemsArgs) (any, error) {
	filter := analytics.ItemFilter{Query: args.Query, Assignee: args.Assignee, List: args.List}
	if args.Status != "" {
		cat, err := stage.ParseCategory(args.Status)
		if err != nil {
			return nil, mcpErr("Unknown status. Use backlog, doing, waiting or done.")
		}
		filter.Status = cat
	}

	snap, err := s.snapshot(args.AgingDays)
	if err != nil {
		return nil, err
	}

	items := filter.Apply(snap.Items, s.dashboard.Classification())
	resp := itemsResponse{SnapshotID: snap.ID, Total: len(snap.Items), Matched: len(items), Items: items}
	if args.Limit > 0 && len(resp.Items) > args.Limit {
		resp.Items = resp.Items[:args.Limit]
	}
	if resp.Items == nil {
		resp.Items = []analytics.WorkItem{}
	}
	return resp, nil
}

func (s *Server) handleRefresh(ctx context.Context, args struct{}) (string, error) {
	snap, err := s.dashboard.Refresh(ctx)
	if errors.Is(err, application.ErrStaleRefresh) {
		return "A newer refresh completed first; its data is current.", nil
	}
	if err != nil {
		return "", mcpErr(fmt.Sprintf("Refresh failed: %v", err))
	}
	return fmt.Sprintf("Refreshed %d cards. Health score %d, %d aged. Snapshot ID: %s",
		len(snap.Items), snap.Metrics.HealthScore, len(snap.Metrics.AgedNow), snap.ID), nil
}

type statusResponse struct {
	State      string `json:"state"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleStatus(ctx context.Context, args struct{}) (any, error) {
	resp := statusResponse{State: s.dashboard.State()}
	if snap, err := s.dashboard.Current(); err == nil {
		resp.SnapshotID = snap.ID
	}
	if err := s.dashboard.LastError(); err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}
