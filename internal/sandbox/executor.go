package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/codemonster/judge/internal/langs"
)

// Compilation-phase limits, independent of the problem's run-phase limits.
const (
	compileTimeLimitSec  = 10
	compileMemoryLimitMB = 256
)

const containerPidsLimit = 64

// DockerClient is the slice of the Docker API the executor needs.
// *client.Client satisfies it.
type DockerClient interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	ContainerStatsOneShot(ctx context.Context, containerID string) (types.ContainerStats, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	Ping(ctx context.Context) (types.Ping, error)
	Info(ctx context.Context) (system.Info, error)
}

// Executor runs untrusted code inside ephemeral Docker containers. One
// instance is shared by all concurrent executions; the workspace store
// gives each run its own directory.
type Executor struct {
	cli        DockerClient
	registry   *langs.Registry
	workspaces *WorkspaceStore
	live       mapset.Set[string]
	logger     *slog.Logger
}

func NewExecutor(cli DockerClient, registry *langs.Registry, workspaces *WorkspaceStore, logger *slog.Logger) *Executor {
	return &Executor{
		cli:        cli,
		registry:   registry,
		workspaces: workspaces,
		live:       mapset.NewSet[string](),
		logger:     logger,
	}
}

// Execute runs one sandboxed execution: fresh workspace (or clone of a
// compiled one), one container, captured output, enforced wall-clock
// timeout. The workspace is deleted unconditionally before returning.
func (e *Executor) Execute(ctx context.Context, req ExecRequest) ExecResult {
	profile, err := e.registry.Resolve(req.LanguageID)
	if err != nil {
		return infraResult(err.Error())
	}

	timeLimit := req.TimeLimitSec
	if timeLimit <= 0 {
		timeLimit = profile.TimeLimitSec
	}
	memLimit := req.MemoryLimitMB
	if memLimit <= 0 {
		memLimit = profile.MemoryLimitMB
	}

	var ws string
	if req.ReuseWorkspace != "" {
		ws, err = e.workspaces.Clone(req.ReuseWorkspace)
	} else {
		ws, err = e.workspaces.Create(profile, req.Code)
	}
	if err != nil {
		return infraResult(fmt.Sprintf("sandbox workspace error: %v", err))
	}
	defer func() {
		if rmErr := e.workspaces.Remove(ws); rmErr != nil {
			e.logger.Warn("workspace cleanup failed", "workspace", ws, "error", rmErr)
		}
	}()

	if req.Input != "" {
		if err := e.workspaces.WriteInput(ws, req.Input); err != nil {
			return infraResult(fmt.Sprintf("sandbox workspace error: %v", err))
		}
	}

	run := e.runContainer(ctx, profile.Image, nil, ws, timeLimit, memLimit)
	if run.err != nil {
		return infraResult(fmt.Sprintf("sandbox runtime error: %v", run.err))
	}

	if run.timedOut {
		mem, approx := resolveMemory(0, run.statsMaxBytes, memLimit)
		return ExecResult{
			Success:       false,
			Error:         "time limit exceeded",
			ExitCode:      -1,
			RuntimeMillis: int64(timeLimit) * 1000,
			MemoryMB:      mem,
			MemoryApprox:  approx,
			Kind:          FailureTimeout,
		}
	}

	if run.oomKilled {
		return ExecResult{
			Success:       false,
			Error:         "memory limit exceeded",
			ExitCode:      int(run.exitCode),
			RuntimeMillis: run.runtimeMillis,
			MemoryMB:      int64(memLimit),
			Kind:          FailureMemory,
		}
	}

	if payload, ok := parseResultPayload(run.stdout); ok {
		res := ExecResult{
			Success:       payload.Success,
			Output:        strings.TrimSpace(payload.Output),
			ExitCode:      int(run.exitCode),
			RuntimeMillis: run.runtimeMillis,
		}
		if payload.RuntimeMillis > 0 {
			res.RuntimeMillis = payload.RuntimeMillis
		}
		if payload.Error != nil {
			res.Error = *payload.Error
		}
		res.MemoryMB, res.MemoryApprox = resolveMemory(payload.MemoryKB, run.statsMaxBytes, memLimit)
		if !res.Success {
			res.Kind = FailureRuntime
		}
		return res
	}

	// No structured record: fall back to exit-code semantics on the raw
	// captured output.
	mem, approx := resolveMemory(0, run.statsMaxBytes, memLimit)
	res := ExecResult{
		Success:       run.exitCode == 0,
		Output:        strings.TrimSpace(run.stdout),
		ExitCode:      int(run.exitCode),
		RuntimeMillis: run.runtimeMillis,
		MemoryMB:      mem,
		MemoryApprox:  approx,
	}
	if !res.Success {
		res.Kind = FailureRuntime
		res.Error = strings.TrimSpace(run.stderr)
		if res.Error == "" {
			res.Error = "execution failed"
		}
	}
	return res
}

// Compile runs the profile's compile command in a fresh workspace under
// the fixed compilation-phase limits. On success the workspace (now
// holding the build artifacts) is kept and returned for reuse; on any
// failure it is deleted.
func (e *Executor) Compile(ctx context.Context, code, languageID string) CompileResult {
	profile, err := e.registry.Resolve(languageID)
	if err != nil {
		return CompileResult{Error: err.Error()}
	}
	if !profile.NeedsCompilation() {
		return CompileResult{Success: true}
	}

	ws, err := e.workspaces.Create(profile, code)
	if err != nil {
		return CompileResult{Error: fmt.Sprintf("sandbox workspace error: %v", err)}
	}

	cmd := []string{"/bin/sh", "-c", profile.CompileCommand}
	run := e.runContainer(ctx, profile.Image, cmd, ws, compileTimeLimitSec, compileMemoryLimitMB)

	switch {
	case run.err != nil:
		e.removeOrLog(ws)
		return CompileResult{Error: fmt.Sprintf("sandbox runtime error: %v", run.err)}
	case run.timedOut:
		e.removeOrLog(ws)
		return CompileResult{Error: "compilation timed out", RuntimeMillis: int64(compileTimeLimitSec) * 1000}
	case run.exitCode != 0:
		e.removeOrLog(ws)
		msg := strings.TrimSpace(run.stderr)
		if msg == "" {
			msg = strings.TrimSpace(run.stdout)
		}
		if msg == "" {
			msg = fmt.Sprintf("compiler exited with code %d", run.exitCode)
		}
		return CompileResult{Error: msg, RuntimeMillis: run.runtimeMillis}
	}

	return CompileResult{Success: true, Workspace: ws, RuntimeMillis: run.runtimeMillis}
}

// removeOrLog deletes a workspace, logging any failure instead of raising it.
func (e *Executor) removeOrLog(ws string) {
	if err := e.workspaces.Remove(ws); err != nil {
		e.logger.Warn("workspace cleanup failed", "workspace", ws, "error", err)
	}
}

// CleanupWorkspace deletes a compiled workspace. Best-effort: failures are
// logged, never raised.
func (e *Executor) CleanupWorkspace(ref string) {
	if err := e.workspaces.Remove(ref); err != nil {
		e.logger.Warn("workspace cleanup failed", "workspace", ref, "error", err)
	}
}

// HealthCheck reports whether the sandbox runtime is reachable.
func (e *Executor) HealthCheck(ctx context.Context) bool {
	_, err := e.cli.Ping(ctx)
	return err == nil
}

// ImagePresent reports whether a sandbox image is available on the host.
func (e *Executor) ImagePresent(ctx context.Context, image string) bool {
	_, _, err := e.cli.ImageInspectWithRaw(ctx, image)
	return err == nil
}

// SystemInfo is a summary of the sandbox runtime for health reporting.
type SystemInfo struct {
	Containers    int    `json:"containers"`
	Images        int    `json:"images"`
	MemTotal      int64  `json:"memTotal"`
	ServerVersion string `json:"serverVersion"`
}

func (e *Executor) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	info, err := e.cli.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("sandbox runtime info: %w", err)
	}
	return &SystemInfo{
		Containers:    info.Containers,
		Images:        info.Images,
		MemTotal:      info.MemTotal,
		ServerVersion: info.ServerVersion,
	}, nil
}

// Close force-removes any containers still tracked as live and closes the
// underlying client if it supports closing.
func (e *Executor) Close(ctx context.Context) error {
	for _, id := range e.live.ToSlice() {
		if err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Warn("failed to remove leftover container", "container", id, "error", err)
		}
		e.live.Remove(id)
	}
	if closer, ok := e.cli.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type containerRun struct {
	stdout        string
	stderr        string
	exitCode      int64
	runtimeMillis int64
	timedOut      bool
	oomKilled     bool
	statsMaxBytes int64
	err           error
}

func (e *Executor) runContainer(ctx context.Context, image string, cmd []string, ws string, timeLimitSec, memLimitMB int) containerRun {
	pids := int64(containerPidsLimit)
	memBytes := int64(memLimitMB) * 1024 * 1024

	resp, err := e.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      image,
			Cmd:        strslice.StrSlice(cmd),
			WorkingDir: "/workspace",
			Env:        []string{"HOME=/tmp"},
		},
		&container.HostConfig{
			Binds:       []string{ws + ":/workspace"},
			NetworkMode: network.NetworkNone,
			CapDrop:     strslice.StrSlice{"ALL"},
			SecurityOpt: []string{"no-new-privileges"},
			Resources: container.Resources{
				Memory:     memBytes,
				MemorySwap: memBytes,
				CPUShares:  512,
				PidsLimit:  &pids,
			},
		},
		nil, nil, "")
	if err != nil {
		return containerRun{err: fmt.Errorf("create container: %w", err)}
	}

	id := resp.ID
	e.live.Add(id)
	defer func() {
		// Removal must survive a cancelled request context.
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.cli.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Warn("failed to remove container", "container", id, "error", err)
		}
		e.live.Remove(id)
	}()

	started := time.Now()
	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return containerRun{err: fmt.Errorf("start container: %w", err)}
	}

	statsDone := make(chan struct{})
	statsMax := make(chan int64, 1)
	go e.sampleMemory(ctx, id, statsDone, statsMax)

	var run containerRun
	statusCh, errCh := e.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		run.exitCode = status.StatusCode
	case err := <-errCh:
		close(statsDone)
		return containerRun{err: fmt.Errorf("wait for container: %w", err)}
	case <-time.After(time.Duration(timeLimitSec) * time.Second):
		run.timedOut = true
		if err := e.cli.ContainerKill(ctx, id, "KILL"); err != nil {
			e.logger.Warn("failed to kill timed out container", "container", id, "error", err)
		}
	case <-ctx.Done():
		close(statsDone)
		_ = e.cli.ContainerKill(context.Background(), id, "KILL")
		return containerRun{err: ctx.Err()}
	}
	run.runtimeMillis = time.Since(started).Milliseconds()

	close(statsDone)
	run.statsMaxBytes = <-statsMax

	logs, err := e.cli.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		if run.timedOut {
			return run
		}
		return containerRun{err: fmt.Errorf("read container logs: %w", err)}
	}
	defer logs.Close()

	var outBuf, errBuf strings.Builder
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, logs); err != nil {
		e.logger.Warn("failed to demux container logs", "container", id, "error", err)
	}
	run.stdout = outBuf.String()
	run.stderr = errBuf.String()

	if inspect, err := e.cli.ContainerInspect(ctx, id); err == nil && inspect.State != nil {
		run.oomKilled = inspect.State.OOMKilled
	}

	return run
}

// sampleMemory polls the runtime's memory accounting while the container
// runs and reports the highest observed peak.
func (e *Executor) sampleMemory(ctx context.Context, id string, done <-chan struct{}, out chan<- int64) {
	var max int64
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			out <- max
			return
		case <-ctx.Done():
			out <- max
			return
		case <-ticker.C:
			stats, err := e.cli.ContainerStatsOneShot(ctx, id)
			if err != nil {
				continue
			}
			var decoded types.StatsJSON
			err = json.NewDecoder(stats.Body).Decode(&decoded)
			stats.Body.Close()
			if err != nil {
				continue
			}
			if int64(decoded.MemoryStats.MaxUsage) > max {
				max = int64(decoded.MemoryStats.MaxUsage)
			}
			if int64(decoded.MemoryStats.Usage) > max {
				max = int64(decoded.MemoryStats.Usage)
			}
		}
	}
}

func infraResult(msg string) ExecResult {
	return ExecResult{
		Success:  false,
		Error:    msg,
		ExitCode: -1,
		Kind:     FailureInfra,
	}
}

// resolveMemory picks the best available peak-memory figure: the
// entrypoint's self-reported value, then the runtime's accounting, then a
// heuristic fraction of the limit flagged as approximate.
func resolveMemory(payloadKB, statsBytes int64, limitMB int) (mb int64, approx bool) {
	if payloadKB > 0 {
		mb = payloadKB / 1024
		if mb < 1 {
			mb = 1
		}
		return mb, false
	}
	if statsBytes > 0 {
		mb = statsBytes / (1024 * 1024)
		if mb < 1 {
			mb = 1
		}
		return mb, false
	}
	mb = int64(limitMB) / 4
	if mb < 1 {
		mb = 1
	}
	return mb, true
}
