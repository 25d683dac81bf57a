package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/mcp"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// toolsCmd connects to every configured MCP server and lists its tools.
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List MCP servers and the tools they expose",
	Long: `Reads the mcpServers file (tools.mcp_config_path), connects to every
enabled server and prints the tools the execution agent would see.
Tool ids use the server__tool form.`,
	RunE: runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	manager := mcp.NewManager(mcp.FromConfigFile(cfg.Tools.MCPConfigPath, cfg.GetExecTimeout()), nil,
		mcp.WithInitTimeout(cfg.GetInitTimeout()))
	sessions, err := manager.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to MCP servers from %s: %w", cfg.Tools.MCPConfigPath, err)
	}
	defer manager.Close(context.Background(), cfg.GetCloseTimeout())

	tools, err := sessions.Tools(ctx)
	if err != nil {
		return err
	}
	logger.Debug("Discovered tools", zap.Int("count", len(tools)))

	fmt.Fprint(cmd.OutOrStdout(), renderTools(sessions.Servers(), tools))
	return nil
}

// renderTools groups tools under their server.
func renderTools(servers []mcp.ServerState, tools []mcp.Tool) string {
	byServer := make(map[string][]mcp.Tool)
	for _, t := range tools {
		byServer[t.Server] = append(byServer[t.Server], t)
	}

	var b strings.Builder
	for _, s := range servers {
		header := s.Name
		if s.Server != "" {
			header += fmt.Sprintf(" (%s %s)", s.Server, s.Version)
		}
		b.WriteString(titleStyle.Render(header))
		b.WriteString(" ")
		b.WriteString(statusStyle(s.Status).Render(string(s.Status)))
		b.WriteString("\n")

		list := byServer[s.Name]
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		if len(list) == 0 {
			b.WriteString(dimStyle.Render("  no tools"))
			b.WriteString("\n")
		}
		for _, t := range list {
			b.WriteString("  ")
			b.WriteString(idStyle.Render(t.ID))
			if d := strings.TrimSpace(t.Schema.Description); d != "" {
				b.WriteString("  ")
				b.WriteString(dimStyle.Render(firstLine(d)))
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\n%d tools on %d servers\n", len(tools), len(servers))
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
