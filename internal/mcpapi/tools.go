// Package mcpapi exposes the current spin state of polled devices as
// read-only MCP tools.
package mcpapi

import (
	"context"
	"path/filepath"
	"time"

	"github.com/jamesprial/unraid-spin-exporter/internal/poller"
	"github.com/jamesprial/unraid-spin-exporter/internal/registry"
	"github.com/jamesprial/unraid-spin-exporter/internal/safety"
	"github.com/jamesprial/unraid-spin-exporter/internal/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// StateSource is the read side of the device registry.
type StateSource interface {
	Snapshot() registry.Snapshot
	Get(device string) (registry.Entry, bool)
}

// PhaseSource reports whether a poll cycle is in progress.
type PhaseSource interface {
	Phase() poller.Phase
}

// StatusReport is the payload of the disk_spin_status tool.
type StatusReport struct {
	Phase    string            `json:"phase"`
	Snapshot registry.Snapshot `json:"snapshot"`
}

// SpinTools returns the tool registrations for querying spin state. Both
// tools are read-only.
func SpinTools(state StateSource, phase PhaseSource, audit *safety.AuditLogger) []tools.Registration {
	return []tools.Registration{
		spinStatus(state, phase, audit),
		spinDevice(state, audit),
	}
}

func spinStatus(state StateSource, phase PhaseSource, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool("disk_spin_status",
		mcp.WithDescription("Get the last observed spin state (spinning, idle or unknown) of every polled disk, cumulative probe failure counts, and whether a poll cycle is running."),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		report := StatusReport{
			Phase:    phase.Phase().String(),
			Snapshot: state.Snapshot(),
		}
		tools.LogAudit(audit, safety.AuditEntry{
			Tool:    "disk_spin_status",
			Devices: len(report.Snapshot.Entries),
			Result:  "ok",
		}, start)
		return tools.JSONResult(report), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func spinDevice(state StateSource, audit *safety.AuditLogger) tools.Registration {
	tool := mcp.NewTool("disk_spin_device",
		mcp.WithDescription("Get the last observed spin state of one disk. Accepts a device path such as /dev/sdb or a bare name such as sdb."),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("Device path or name"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		device := req.GetString("device", "")
		audited := safety.AuditEntry{Tool: "disk_spin_device", Device: device}

		if device == "" {
			audited.Result = "error: device is required"
			tools.LogAudit(audit, audited, start)
			return tools.ErrorResult("device is required"), nil
		}

		entry, ok := lookup(state, device)
		if !ok {
			audited.Result = "error: not polled"
			tools.LogAudit(audit, audited, start)
			return tools.ErrorResult("device " + device + " is not polled"), nil
		}

		audited.Resolved = entry.Device
		audited.State = entry.State.String()
		audited.Result = "ok"
		tools.LogAudit(audit, audited, start)
		return tools.JSONResult(entry), nil
	}

	return tools.Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// lookup resolves device by exact identifier first, then by base name.
func lookup(state StateSource, device string) (registry.Entry, bool) {
	if e, ok := state.Get(device); ok {
		return e, true
	}
	if !filepath.IsAbs(device) {
		if e, ok := state.Get("/dev/" + device); ok {
			return e, true
		}
	}
	base := filepath.Base(device)
	for _, e := range state.Snapshot().Entries {
		if filepath.Base(e.Device) == base {
			return e, true
		}
	}
	return registry.Entry{}, false
}
