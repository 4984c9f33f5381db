package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/nexushq/nexushub/pkg/transport"
)

// startContainerProcess launches a supervised server inside a container.
// A server with ContainerPort set speaks http and gets its port published
// to the host via go-connections/nat; otherwise its stdio stream is
// attached and demultiplexed through the Docker stdcopy frame format.
// Grounded on the teacher's pkg/runtime/docker container lifecycle
// (ContainerConfig's OpenStdin/AttachStdin/AttachStdout for stdio-transport
// containers, and its PortBindings handling for published-port containers).
func startContainerProcess(ctx context.Context, reg Registration, logger *slog.Logger) (transport.Transport, error) {
	if reg.ContainerImage == "" {
		return nil, fmt.Errorf("no container image specified for server %s", reg.ID)
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	var envSlice []string
	for k, v := range reg.Env {
		envSlice = append(envSlice, k+"="+v)
	}

	if reg.ContainerPort != "" {
		return startContainerHTTP(ctx, cli, reg, envSlice, logger)
	}

	config := &dockercontainer.Config{
		Image:        reg.ContainerImage,
		Cmd:          reg.Command,
		Env:          envSlice,
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	}

	created, err := cli.ContainerCreate(ctx, config, &dockercontainer.HostConfig{}, nil, nil, "nexushub-"+reg.ID)
	if err != nil {
		return nil, fmt.Errorf("creating container for server %s: %w", reg.ID, err)
	}

	attach, err := cli.ContainerAttach(ctx, created.ID, dockercontainer.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("attaching to container %s: %w", created.ID, err)
	}

	if err := cli.ContainerStart(ctx, created.ID, dockercontainer.StartOptions{}); err != nil {
		attach.Close()
		return nil, fmt.Errorf("starting container for server %s: %w", reg.ID, err)
	}

	stdoutReader, stdoutWriter := io.Pipe()
	stderrWriter := &stderrLogWriter{logger: logger, serverID: reg.ID}
	go func() {
		defer stdoutWriter.Close()
		_, _ = stdcopy.StdCopy(stdoutWriter, stderrWriter, attach.Reader)
	}()

	return transport.NewStdio(stdoutReader, attach.Conn, attach.Conn, logger), nil
}

// startContainerHTTP creates reg's container with its ContainerPort
// published to an ephemeral host port, then returns an HTTP client
// transport pointed at the published address.
func startContainerHTTP(ctx context.Context, cli *client.Client, reg Registration, envSlice []string, logger *slog.Logger) (transport.Transport, error) {
	containerPort := nat.Port(reg.ContainerPort)

	exposedPorts := nat.PortSet{containerPort: struct{}{}}
	portBindings := nat.PortMap{
		containerPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}},
	}

	config := &dockercontainer.Config{
		Image:        reg.ContainerImage,
		Cmd:          reg.Command,
		Env:          envSlice,
		ExposedPorts: exposedPorts,
		AttachStdout: true,
		AttachStderr: true,
	}
	hostConfig := &dockercontainer.HostConfig{PortBindings: portBindings}

	created, err := cli.ContainerCreate(ctx, config, hostConfig, nil, nil, "nexushub-"+reg.ID)
	if err != nil {
		return nil, fmt.Errorf("creating container for server %s: %w", reg.ID, err)
	}

	if err := cli.ContainerStart(ctx, created.ID, dockercontainer.StartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container for server %s: %w", reg.ID, err)
	}

	inspected, err := cli.ContainerInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("inspecting container for server %s: %w", reg.ID, err)
	}
	bindings := inspected.NetworkSettings.Ports[containerPort]
	if len(bindings) == 0 {
		return nil, fmt.Errorf("container for server %s published no host binding for port %s", reg.ID, containerPort)
	}

	endpoint := "http://" + bindings[0].HostIP + ":" + bindings[0].HostPort
	return transport.NewHTTPClient(endpoint, http.DefaultClient, logger), nil
}

// stderrLogWriter adapts the container's demultiplexed stderr stream to
// the structured logger, one line at a time.
type stderrLogWriter struct {
	logger   *slog.Logger
	serverID string
	buf      []byte
}

func (w *stderrLogWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := -1
		for i, b := range w.buf {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		line := w.buf[:idx]
		w.buf = w.buf[idx+1:]
		if len(line) > 0 {
			w.logger.Warn("server stderr", "server", w.serverID, "output", string(line))
		}
	}
	return len(p), nil
}
