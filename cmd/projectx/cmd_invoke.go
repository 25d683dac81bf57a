package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/TNAHOM/project-x-ai-service/internal/app"
	"github.com/TNAHOM/project-x-ai-service/internal/orchestrator"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	invokeContext string
	invokePrompt  string
	invokeRaw     bool

	pipelineStrategy int
)

// invokeCmd runs a single stage.
var invokeCmd = &cobra.Command{
	Use:   "invoke [agent]",
	Short: "Run one stage with a JSON context",
	Long: `Runs one stage exactly as POST /agent/ does.

The context is a JSON object, given inline or as @file. Agents:
  clarifying, classifying, domain, tasks, automate, clarify_automation,
  expander, execute, venting

Example:
  projectx invoke clarifying --prompt "I want to save more" --context '{"history": []}'
  projectx invoke domain --context @problem.json`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

// pipelineCmd runs classify through automate.
var pipelineCmd = &cobra.Command{
	Use:   "pipeline [prompt]",
	Short: "Run classify, domain, tasks and automate for a prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPipeline,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeContext, "context", "{}", "Context JSON object or @file")
	invokeCmd.Flags().StringVarP(&invokePrompt, "prompt", "p", "", "User prompt")
	invokeCmd.Flags().BoolVar(&invokeRaw, "raw", false, "Print JSON without styling")

	pipelineCmd.Flags().IntVar(&pipelineStrategy, "strategy", 0, "Index of the strategy to plan for")
	pipelineCmd.Flags().BoolVar(&invokeRaw, "raw", false, "Print JSON without styling")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	raw, err := readContext(invokeContext)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	logger.Debug("Invoking stage", zap.String("agent", args[0]))
	res, err := a.Orchestrator.Dispatch(ctx, orchestrator.AgentRequest{
		AgentName:  args[0],
		UserPrompt: invokePrompt,
		Context:    raw,
	})
	if err != nil {
		return err
	}
	return printResult(cmd, fmt.Sprintf("%s (run %s)", res.Agent, res.RunID), res.Output)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := startApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res, err := a.Orchestrator.Pipeline(ctx, orchestrator.PipelineRequest{
		UserPrompt:    joinArgs(args),
		StrategyIndex: pipelineStrategy,
	})
	if res != nil {
		if perr := printResult(cmd, "pipeline (run "+res.RunID+")", res); perr != nil {
			return perr
		}
	}
	return err
}

func startApp(ctx context.Context) (*app.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

// readContext returns the context JSON given inline or as @path.
func readContext(arg string) (json.RawMessage, error) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read context file: %w", err)
		}
		arg = string(data)
	}
	if arg == "" {
		return nil, nil
	}
	if !json.Valid([]byte(arg)) {
		return nil, fmt.Errorf("context is not valid JSON")
	}
	return json.RawMessage(arg), nil
}

func printResult(cmd *cobra.Command, title string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if invokeRaw {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	fmt.Fprintln(out, titleStyle.Render(title))
	fmt.Fprintln(out, renderMarkdown("```json\n"+string(data)+"\n```"))
	return nil
}
