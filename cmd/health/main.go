package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/docker/docker/client"
	pretty_table "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/codemonster/judge/internal/config"
	"github.com/codemonster/judge/internal/langs"
	"github.com/codemonster/judge/internal/sandbox"
)

type feedbackRow struct {
	unit    string
	health  int // 0 - OK, 1 - Warning, 2 - Error
	message string
}

// cmd/health checks a deployment: daemon reachability, per-language image
// presence, and a hello-world run through each sandbox image.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	feedback := make([]feedbackRow, 0)

	cfg := config.Read()
	registry := langs.NewRegistry()
	if cfg.LanguagesFile != "" {
		if err := registry.LoadFile(cfg.LanguagesFile); err != nil {
			feedback = append(feedback, feedbackRow{unit: "Language table", health: 2, message: err.Error()})
			outputFeedback(feedback)
			os.Exit(1)
		}
	}

	executor, daemonRow := connectSandbox(ctx, cfg, registry)
	feedback = append(feedback, daemonRow)

	if daemonRow.health != 2 {
		feedback = append(feedback, ensureLanguagesOk(ctx, executor, registry)...)
	}

	outputFeedback(feedback)

	for _, row := range feedback {
		if row.health == 2 {
			os.Exit(1)
		}
	}
}

func connectSandbox(ctx context.Context, cfg *config.Config, registry *langs.Registry) (*sandbox.Executor, feedbackRow) {
	dockerCli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, feedbackRow{unit: "Docker daemon", health: 2, message: err.Error()}
	}

	store, err := sandbox.NewWorkspaceStore(cfg.WorkspaceRoot)
	if err != nil {
		return nil, feedbackRow{unit: "Workspace root", health: 2, message: err.Error()}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	executor := sandbox.NewExecutor(dockerCli, registry, store, logger)

	if !executor.HealthCheck(ctx) {
		return executor, feedbackRow{unit: "Docker daemon", health: 2, message: "unreachable"}
	}

	msg := "reachable"
	if info, err := executor.SystemInfo(ctx); err == nil {
		msg = fmt.Sprintf("version %s, %d containers, %d images", info.ServerVersion, info.Containers, info.Images)
	}
	return executor, feedbackRow{unit: "Docker daemon", health: 0, message: msg}
}

func ensureLanguagesOk(ctx context.Context, executor *sandbox.Executor, registry *langs.Registry) []feedbackRow {
	res := make([]feedbackRow, 0)
	for _, profile := range registry.List() {
		if !executor.ImagePresent(ctx, profile.Image) {
			res = append(res, feedbackRow{
				unit:    profile.Name,
				health:  2,
				message: fmt.Sprintf("image %s missing", profile.Image),
			})
			continue
		}
		if profile.HelloWorld == "" {
			res = append(res, feedbackRow{
				unit:    profile.Name,
				health:  1,
				message: "image present, no hello-world program to run",
			})
			continue
		}

		run := executor.Execute(ctx, sandbox.ExecRequest{
			Code:       profile.HelloWorld,
			LanguageID: profile.ID,
		})
		if !run.Success {
			res = append(res, feedbackRow{unit: profile.Name, health: 2, message: run.Error})
			continue
		}
		res = append(res, feedbackRow{
			unit:    profile.Name,
			health:  0,
			message: fmt.Sprintf("%q in %dms", run.Output, run.RuntimeMillis),
		})
	}
	return res
}

func outputFeedback(feedback []feedbackRow) {
	t := pretty_table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(pretty_table.Row{"Unit", "Health", "Message"})
	for _, row := range feedback {
		healthCode := ""
		switch row.health {
		case 0:
			healthCode = "OKAY"
		case 1:
			healthCode = "WARN"
		case 2:
			healthCode = "ERROR"
		}

		t.AppendRow(
			pretty_table.Row{
				row.unit,
				healthCode,
				row.message,
			})
	}
	t.SetStyle(pretty_table.StyleColoredDark)
	textColor := text.Transformer(func(s interface{}) string {
		switch s.(string) {
		case "OKAY":
			return text.FgHiGreen.Sprint(s)
		case "WARN":
			return text.FgHiYellow.Sprint(s)
		case "ERROR":
			return text.FgHiRed.Sprint(s)
		}
		return ""
	})

	t.SetColumnConfigs([]pretty_table.ColumnConfig{
		{
			Name:        "Health",
			Transformer: textColor,
			Align:       text.AlignCenter,
		},
	})
	t.Render()
}
