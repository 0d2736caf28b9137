// Package dockerapi is a thin read/remove layer over the Docker Engine API
// for containers, images, volumes and networks.
package dockerapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/loykin/servcur/internal/domain"
)

// ErrUnavailable is returned when the Docker integration is disabled or the
// daemon cannot be reached.
var ErrUnavailable = errors.New("docker is not available")

// Client wraps the Docker SDK client.
type Client struct {
	inner *client.Client
}

// New creates a client from the environment defaults, optionally pointed at
// host. An empty version negotiates with the daemon.
func New(host, version string) (*Client, error) {
	opts := []client.Opt{client.FromEnv}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	if version != "" {
		opts = append(opts, client.WithVersion(version))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}
	inner, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{inner: inner}, nil
}

// Ping validates connectivity to the Docker daemon.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return ErrUnavailable
	}
	ping, err := c.inner.Ping(ctx)
	if err != nil {
		return fmt.Errorf("docker ping: %w", err)
	}
	if ping.APIVersion == "" {
		return fmt.Errorf("docker ping returned empty API version")
	}
	return nil
}

// Close releases resources held by the Docker client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

type SystemInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	ServerVersion     string `json:"server_version"`
	OperatingSystem   string `json:"operating_system"`
	Architecture      string `json:"architecture"`
	NCPU              int    `json:"ncpu"`
	MemTotal          int64  `json:"mem_total"`
	Containers        int    `json:"containers"`
	ContainersRunning int    `json:"containers_running"`
	Images            int    `json:"images"`
}

func (c *Client) Info(ctx context.Context) (SystemInfo, error) {
	if c == nil || c.inner == nil {
		return SystemInfo{}, ErrUnavailable
	}
	info, err := c.inner.Info(ctx)
	if err != nil {
		return SystemInfo{}, wrap("info", "", err)
	}
	return SystemInfo{
		ID:                info.ID,
		Name:              info.Name,
		ServerVersion:     info.ServerVersion,
		OperatingSystem:   info.OperatingSystem,
		Architecture:      info.Architecture,
		NCPU:              info.NCPU,
		MemTotal:          info.MemTotal,
		Containers:        info.Containers,
		ContainersRunning: info.ContainersRunning,
		Images:            info.Images,
	}, nil
}

type Container struct {
	ID      string   `json:"id"`
	Names   []string `json:"names"`
	Image   string   `json:"image"`
	State   string   `json:"state"`
	Status  string   `json:"status"`
	Created int64    `json:"created"`
}

func (c *Client) Containers(ctx context.Context) ([]Container, error) {
	if c == nil || c.inner == nil {
		return nil, ErrUnavailable
	}
	list, err := c.inner.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, wrap("list containers", "", err)
	}
	out := make([]Container, 0, len(list))
	for _, ct := range list {
		out = append(out, Container{
			ID:      ct.ID,
			Names:   ct.Names,
			Image:   ct.Image,
			State:   ct.State,
			Status:  ct.Status,
			Created: ct.Created,
		})
	}
	return out, nil
}

func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	if c == nil || c.inner == nil {
		return ErrUnavailable
	}
	return wrap("remove container", id, c.inner.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}))
}

// ContainerLogs follows the combined stdout and stderr of a container,
// starting at since (unix seconds, 0 for the whole log). Every line carries
// the engine timestamp. The caller closes the stream to stop following.
func (c *Client) ContainerLogs(ctx context.Context, id string, since int64) (io.ReadCloser, error) {
	if c == nil || c.inner == nil {
		return nil, ErrUnavailable
	}
	info, err := c.inner.ContainerInspect(ctx, id)
	if err != nil {
		return nil, wrap("inspect container", id, err)
	}
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Follow:     true,
	}
	if since > 0 {
		opts.Since = strconv.FormatInt(since, 10)
	}
	rc, err := c.inner.ContainerLogs(ctx, id, opts)
	if err != nil {
		return nil, wrap("container logs", id, err)
	}
	tty := info.Config != nil && info.Config.Tty
	return Demux(rc, tty), nil
}

// Demux turns an engine log stream into plain text. Without a TTY the
// engine multiplexes stdout and stderr into framed chunks; both are merged
// in arrival order. A TTY stream is already plain and is returned as is.
func Demux(rc io.ReadCloser, tty bool) io.ReadCloser {
	if tty {
		return rc
	}
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		_ = pw.CloseWithError(err)
	}()
	return &demuxed{PipeReader: pr, src: rc}
}

type demuxed struct {
	*io.PipeReader
	src io.Closer
}

func (d *demuxed) Close() error {
	_ = d.PipeReader.Close()
	return d.src.Close()
}

type Image struct {
	ID       string   `json:"id"`
	RepoTags []string `json:"repo_tags"`
	Size     int64    `json:"size"`
	Created  int64    `json:"created"`
}

func (c *Client) Images(ctx context.Context) ([]Image, error) {
	if c == nil || c.inner == nil {
		return nil, ErrUnavailable
	}
	list, err := c.inner.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, wrap("list images", "", err)
	}
	out := make([]Image, 0, len(list))
	for _, im := range list {
		out = append(out, Image{ID: im.ID, RepoTags: im.RepoTags, Size: im.Size, Created: im.Created})
	}
	return out, nil
}

func (c *Client) RemoveImage(ctx context.Context, id string, force bool) error {
	if c == nil || c.inner == nil {
		return ErrUnavailable
	}
	_, err := c.inner.ImageRemove(ctx, id, image.RemoveOptions{Force: force, PruneChildren: true})
	return wrap("remove image", id, err)
}

type Volume struct {
	Name       string `json:"name"`
	Driver     string `json:"driver"`
	Mountpoint string `json:"mountpoint"`
	CreatedAt  string `json:"created_at"`
}

func (c *Client) Volumes(ctx context.Context) ([]Volume, error) {
	if c == nil || c.inner == nil {
		return nil, ErrUnavailable
	}
	resp, err := c.inner.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, wrap("list volumes", "", err)
	}
	out := make([]Volume, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		if v == nil {
			continue
		}
		out = append(out, Volume{Name: v.Name, Driver: v.Driver, Mountpoint: v.Mountpoint, CreatedAt: v.CreatedAt})
	}
	return out, nil
}

func (c *Client) RemoveVolume(ctx context.Context, name string, force bool) error {
	if c == nil || c.inner == nil {
		return ErrUnavailable
	}
	return wrap("remove volume", name, c.inner.VolumeRemove(ctx, name, force))
}

type Network struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Driver string `json:"driver"`
	Scope  string `json:"scope"`
}

func (c *Client) Networks(ctx context.Context) ([]Network, error) {
	if c == nil || c.inner == nil {
		return nil, ErrUnavailable
	}
	list, err := c.inner.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, wrap("list networks", "", err)
	}
	out := make([]Network, 0, len(list))
	for _, n := range list {
		out = append(out, Network{ID: n.ID, Name: n.Name, Driver: n.Driver, Scope: n.Scope})
	}
	return out, nil
}

func (c *Client) RemoveNetwork(ctx context.Context, id string) error {
	if c == nil || c.inner == nil {
		return ErrUnavailable
	}
	return wrap("remove network", id, c.inner.NetworkRemove(ctx, id))
}

// wrap maps engine errors onto the domain taxonomy.
func wrap(op, id string, err error) error {
	switch {
	case err == nil:
		return nil
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %s %s: %v", domain.ErrNotFound, op, id, err)
	case errdefs.IsConflict(err), errdefs.IsInvalidParameter(err):
		return fmt.Errorf("%w: %s %s: %v", domain.ErrInvalid, op, id, err)
	}
	return fmt.Errorf("docker %s: %w", op, err)
}
