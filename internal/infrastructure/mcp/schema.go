package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/felixgeelhaar/mcp-go"
)

// SchemaVersion is the current MCP tool schema version (semver).
const SchemaVersion = "1.0.0"

type schemaResponse struct {
	SchemaVersion string   `json:"schema_version"`
	ServerVersion string   `json:"server_version"`
	Tools         []string `json:"tools"`
}

func schemaDocument() ([]byte, error) {
	return json.Marshal(schemaResponse{
		SchemaVersion: SchemaVersion,
		ServerVersion: Version,
		Tools:         []string{"farol_metrics", "farol_items", "farol_refresh", "farol_status"},
	})
}

func (s *Server) registerSchemaResource() {
	s.mcpServer.Resource("farol://schema").
		Name("farol://schema").
		Description("MCP tool schema version").
		MimeType("application/json").
		Handler(func(_ context.Context, _ string, _ map[string]string) (*mcplib.ResourceContent, error) {
			data, err := schemaDocument()
			if err != nil {
				return nil, err
			}
			return &mcplib.ResourceContent{
				URI:      "farol://schema",
				MimeType: "application/json",
				Text:     string(data),
			}, nil
		})
}
