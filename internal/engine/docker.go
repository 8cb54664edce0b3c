package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	docker "github.com/docker/docker/client"
	dockerArchive "github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/splinter-dev/splinter/internal/apperr"
	"github.com/splinter-dev/splinter/internal/config"
	"github.com/splinter-dev/splinter/internal/function"
)

const resultMarker = "FINAL_RESULT: "

// DockerEngine builds and runs function containers through the Docker
// daemon.
type DockerEngine struct {
	client           *docker.Client
	imagePrefix      string
	buildTimeout     time.Duration
	executionTimeout time.Duration
	removeContainers bool
}

// NewDockerEngine connects to the local Docker daemon using the
// standard environment configuration.
func NewDockerEngine(cfg config.EngineConfig) (*DockerEngine, error) {
	client, err := docker.NewClientWithOpts(docker.FromEnv, docker.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperr.Deployment("docker_unavailable", err, "failed to create docker client")
	}
	return &DockerEngine{
		client:           client,
		imagePrefix:      cfg.ImagePrefix,
		buildTimeout:     cfg.BuildTimeout,
		executionTimeout: cfg.ExecutionTimeout,
		removeContainers: cfg.RemoveContainers,
	}, nil
}

// Close releases the underlying daemon connection.
func (e *DockerEngine) Close() error {
	return e.client.Close()
}

// Ping checks connectivity with the docker daemon.
func (e *DockerEngine) Ping(ctx context.Context) error {
	if _, err := e.client.Ping(ctx); err != nil {
		return apperr.Deployment("docker_unavailable", err, "docker daemon unreachable")
	}
	return nil
}

// BuildImage tars the build directory and builds the function image,
// replacing any previous image with the same tag.
func (e *DockerEngine) BuildImage(ctx context.Context, bc *function.BuildContext) (string, error) {
	fn := bc.Function
	tag := ImageTag(e.imagePrefix, fn.UserID, fn.AppName, fn.Name, fn.PrimaryMethod())

	ctx, cancel := context.WithTimeout(ctx, e.buildTimeout)
	defer cancel()

	// A rebuild replaces the previous image rather than stacking a
	// dangling one next to it.
	if exists, err := e.ImageExists(ctx, tag); err == nil && exists {
		if err := e.RemoveImage(ctx, tag); err != nil {
			log.Warn().Err(err).Str("image", tag).Msg("failed to remove previous image")
		}
	}

	buildContext, err := dockerArchive.TarWithOptions(bc.BuildPath, &dockerArchive.TarOptions{})
	if err != nil {
		return "", apperr.Deployment("build_context", err, "failed to create build context for %s", fn.Name)
	}
	defer buildContext.Close()

	resp, err := e.client.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Dockerfile:  "Dockerfile",
		Tags:        []string{tag},
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", apperr.Deployment("image_build", err, "failed to build image for %s", fn.Name)
	}
	defer resp.Body.Close()

	if err := drainBuildOutput(resp.Body); err != nil {
		return "", apperr.Deployment("image_build", err, "image build failed for %s", fn.Name)
	}

	log.Info().Str("image", tag).Str("function", fn.Name).Msg("image built")
	return tag, nil
}

// buildLine is one JSON message from the daemon's build output stream.
type buildLine struct {
	Stream string `json:"stream"`
	Error  string `json:"error"`
}

func drainBuildOutput(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line buildLine
		if err := json.Unmarshal(raw, &line); err != nil {
			continue
		}
		if line.Error != "" {
			return fmt.Errorf("docker build: %s", line.Error)
		}
		if s := strings.TrimSpace(line.Stream); s != "" {
			log.Debug().Str("build", s).Msg("docker")
		}
	}
	return scanner.Err()
}

// ImageExists reports whether the tag is present in the local image
// store.
func (e *DockerEngine) ImageExists(ctx context.Context, tag string) (bool, error) {
	images, err := e.client.ImageList(ctx, types.ImageListOptions{All: true})
	if err != nil {
		return false, apperr.Deployment("image_list", err, "failed to list images")
	}
	for _, img := range images {
		for _, repoTag := range img.RepoTags {
			if repoTag == tag || repoTag == tag+":latest" {
				return true, nil
			}
		}
	}
	return false, nil
}

// RemoveImage force-removes the image with the given tag.
func (e *DockerEngine) RemoveImage(ctx context.Context, tag string) error {
	if _, err := e.client.ImageRemove(ctx, tag, types.ImageRemoveOptions{Force: true, PruneChildren: true}); err != nil {
		return apperr.Deployment("image_remove", err, "failed to remove image %s", tag)
	}
	return nil
}

// Execute runs one invocation in a throwaway container. The event is
// passed as the single command argument and the result is read back
// from the container logs.
func (e *DockerEngine) Execute(ctx context.Context, fn *function.Function, event *Event) (*function.ExecutionResult, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, apperr.Deployment("event_encode", err, "failed to encode event for %s", fn.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, e.executionTimeout)
	defer cancel()

	env := make([]string, 0, len(fn.EnvVars))
	for k, v := range fn.EnvVars {
		env = append(env, k+"="+v)
	}

	name := fmt.Sprintf("%s-run-%s", SanitizeTag(fn.Name), uuid.NewString()[:8])
	created, err := e.client.ContainerCreate(ctx,
		&container.Config{
			Image: fn.ImageTag,
			Cmd:   []string{string(payload)},
			Env:   env,
		},
		&container.HostConfig{AutoRemove: false},
		nil, nil, name)
	if err != nil {
		return nil, apperr.Deployment("container_create", err, "failed to create container for %s", fn.Name)
	}
	containerID := created.ID
	if e.removeContainers {
		defer e.removeContainer(containerID)
	}

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, apperr.Deployment("container_start", err, "failed to start container for %s", fn.Name)
	}

	waitOk, waitErr := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-waitOk:
		log.Debug().Int64("exit", status.StatusCode).Str("function", fn.Name).Msg("container finished")
	case err := <-waitErr:
		if ctx.Err() != nil {
			return &function.ExecutionResult{
				StatusCode:   500,
				Success:      false,
				ErrorMessage: fmt.Sprintf("function %s timed out after %s", fn.Name, e.executionTimeout),
			}, nil
		}
		return nil, apperr.Deployment("container_wait", err, "failed waiting for container of %s", fn.Name)
	}

	output, err := e.containerOutput(ctx, containerID)
	if err != nil {
		return nil, err
	}
	return parseExecutionOutput(fn.Name, output), nil
}

func (e *DockerEngine) containerOutput(ctx context.Context, containerID string) (string, error) {
	reader, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", apperr.Deployment("container_logs", err, "failed to read container logs")
	}
	defer reader.Close()

	var stdout, stderr strings.Builder
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", apperr.Deployment("container_logs", err, "failed to demux container logs")
	}
	return stdout.String() + stderr.String(), nil
}

func (e *DockerEngine) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		log.Warn().Err(err).Str("container", containerID[:12]).Msg("failed to remove container")
	}
}

// parseExecutionOutput extracts the wrapper's result line from mixed
// container output. Missing markers surface the raw output so broken
// dependencies are visible to the caller.
func parseExecutionOutput(fnName, output string) *function.ExecutionResult {
	idx := strings.LastIndex(output, resultMarker)
	if idx < 0 {
		msg := fmt.Sprintf("function %s produced no result", fnName)
		if reason := dependencyFailure(output); reason != "" {
			msg = reason
		}
		return &function.ExecutionResult{StatusCode: 500, Success: false, ErrorMessage: msg}
	}

	line := output[idx+len(resultMarker):]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}

	var raw struct {
		StatusCode int               `json:"statusCode"`
		Headers    map[string]string `json:"headers"`
		Body       any               `json:"body"`
	}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return &function.ExecutionResult{
			StatusCode:   500,
			Success:      false,
			ErrorMessage: fmt.Sprintf("function %s returned malformed result: %v", fnName, err),
		}
	}

	body := raw.Body
	// Wrappers sometimes stringify JSON bodies. Re-parse so clients
	// receive structured data instead of an escaped string.
	if s, ok := body.(string); ok {
		t := strings.TrimSpace(s)
		if strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[") {
			var parsed any
			if err := json.Unmarshal([]byte(t), &parsed); err == nil {
				body = parsed
			}
		}
	}

	status := raw.StatusCode
	if status == 0 {
		status = 200
	}
	success := status < 400
	result := &function.ExecutionResult{
		StatusCode: status,
		Headers:    raw.Headers,
		Body:       body,
		Success:    success,
	}
	if !success {
		result.ErrorMessage = fmt.Sprintf("function %s returned status %d", fnName, status)
	}
	return result
}

var dependencyErrorHints = []string{
	"ModuleNotFoundError",
	"ImportError",
	"No module named",
}

func dependencyFailure(output string) string {
	for _, hint := range dependencyErrorHints {
		if idx := strings.Index(output, hint); idx >= 0 {
			line := output[idx:]
			if nl := strings.IndexByte(line, '\n'); nl >= 0 {
				line = line[:nl]
			}
			return "missing dependency: " + strings.TrimSpace(line)
		}
	}
	return ""
}
