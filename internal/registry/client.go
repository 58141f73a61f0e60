package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dreamware/primus/internal/cluster"
)

// Client is a Gateway backed by a registry server. Only instances
// registered under service are listed.
type Client struct {
	http    *http.Client
	base    string
	service string
}

func NewClient(base, service string, httpClient *http.Client) *Client {
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{http: httpClient, base: strings.TrimRight(base, "/"), service: service}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := cluster.DoJSON(ctx, c.http, method, c.base+path, nil, body, out)
	var se *cluster.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrInstanceNotFound, path)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ErrInvalidInstance, path)
		}
	}
	return err
}

func idPath(pattern string, id int64) string {
	return strings.Replace(pattern, "{id}", strconv.FormatInt(id, 10), 1)
}

func (c *Client) Register(ctx context.Context, inst Instance) error {
	return c.do(ctx, http.MethodPut, PathRegister, inst, nil)
}

func (c *Client) Deregister(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, idPath(PathDeregister, id), nil, nil)
}

func (c *Client) ListInstances(ctx context.Context) ([]cluster.Peer, error) {
	var services map[string]Instance
	if err := c.do(ctx, http.MethodGet, PathServices, nil, &services); err != nil {
		return nil, err
	}

	peers := make([]cluster.Peer, 0, len(services))
	for _, inst := range services {
		if c.service != "" && inst.Name != c.service {
			continue
		}
		peers = append(peers, inst.Peer())
	}
	sortPeers(peers)
	return peers, nil
}

func (c *Client) ListActiveInstances(ctx context.Context) ([]cluster.Peer, error) {
	peers, err := c.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	return activeOnly(peers), nil
}

func (c *Client) serviceHealth(ctx context.Context, id int64) (ServiceHealth, error) {
	var sh ServiceHealth
	err := c.do(ctx, http.MethodGet, idPath(PathServiceHealth, id), nil, &sh)
	return sh, err
}

func (c *Client) GetInstance(ctx context.Context, id int64) (cluster.Peer, error) {
	sh, err := c.serviceHealth(ctx, id)
	if err != nil {
		return cluster.Peer{}, err
	}
	p := sh.Service.Peer()
	p.Health = sh.AggregatedStatus
	return p, nil
}

// UpdateInstanceMetadata re-registers the instance with fields merged into
// its metadata.
func (c *Client) UpdateInstanceMetadata(ctx context.Context, id int64, fields map[string]string) error {
	sh, err := c.serviceHealth(ctx, id)
	if err != nil {
		return err
	}
	inst := sh.Service
	inst.Meta = mergeMeta(inst.Meta, fields)
	return c.Register(ctx, inst)
}

func (c *Client) GetInstanceHealth(ctx context.Context, id int64) (cluster.HealthStatus, error) {
	sh, err := c.serviceHealth(ctx, id)
	if err != nil {
		return cluster.HealthUnknown, err
	}
	return sh.AggregatedStatus, nil
}

var _ Gateway = (*Client)(nil)
