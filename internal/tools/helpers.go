package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesprial/unraid-spin-exporter/internal/safety"
	"github.com/mark3labs/mcp-go/mcp"
)

// JSONResult marshals v to indented JSON and returns an mcp.CallToolResult.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("error marshaling result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// ErrorResult returns an mcp.CallToolResult flagged as an error.
func ErrorResult(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("error: %s", msg))
}

// LogAudit stamps entry with the call's start time and duration and writes
// it to audit. A nil audit logger is ignored.
func LogAudit(audit *safety.AuditLogger, entry safety.AuditEntry, start time.Time) {
	if audit == nil {
		return
	}
	entry.Timestamp = start
	entry.Duration = time.Since(start)
	_ = audit.Log(entry)
}
