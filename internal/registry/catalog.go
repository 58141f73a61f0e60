package registry

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dreamware/primus/internal/cluster"
)

// Catalog is an in-process registry. It backs the registry server and is
// used directly as a Gateway by simulations that run many peers in one
// process.
type Catalog struct {
	instances map[string]*Instance
	mu        sync.RWMutex
}

func NewCatalog() *Catalog {
	return &Catalog{instances: make(map[string]*Instance)}
}

// Put registers inst, replacing any instance with the same id. The health
// status of an existing instance is kept. A new instance without a check
// starts passing, one with a check starts unknown until it is checked.
func (c *Catalog) Put(inst Instance) error {
	if err := inst.Validate(); err != nil {
		return err
	}

	stored := inst.clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.instances[inst.ID]; ok {
		stored.Status = old.Status
	} else if stored.Check == nil {
		stored.Status = cluster.HealthPassing
	} else {
		stored.Status = cluster.HealthUnknown
	}
	c.instances[inst.ID] = &stored
	return nil
}

func (c *Catalog) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.instances[id]; !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	delete(c.instances, id)
	return nil
}

// Lookup returns a copy of the instance registered under id.
func (c *Catalog) Lookup(id string) (Instance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inst, ok := c.instances[id]
	if !ok {
		return Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return inst.clone(), nil
}

// All returns copies of every instance.
func (c *Catalog) All() []Instance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Instance, 0, len(c.instances))
	for _, inst := range c.instances {
		out = append(out, inst.clone())
	}
	return out
}

// SetHealth records the aggregated status of id. Unknown ids are ignored;
// the instance may have deregistered while it was being checked.
func (c *Catalog) SetHealth(id string, status cluster.HealthStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if inst, ok := c.instances[id]; ok {
		inst.Status = status
	}
}

// Merge applies fields to the metadata of id.
func (c *Catalog) Merge(id string, fields map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instances[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	inst.Meta = mergeMeta(inst.Meta, fields)
	return nil
}

// Targets lists the health checks of every instance that has one.
func (c *Catalog) Targets() []Target {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Target, 0, len(c.instances))
	for id, inst := range c.instances {
		if inst.Check == nil || inst.Check.HTTP == "" {
			continue
		}
		out = append(out, Target{ID: id, URL: inst.Check.HTTP})
	}
	return out
}

// Gateway methods.

func (c *Catalog) Register(_ context.Context, inst Instance) error {
	return c.Put(inst)
}

func (c *Catalog) Deregister(_ context.Context, id int64) error {
	return c.Remove(strconv.FormatInt(id, 10))
}

func (c *Catalog) ListInstances(_ context.Context) ([]cluster.Peer, error) {
	all := c.All()
	peers := make([]cluster.Peer, 0, len(all))
	for _, inst := range all {
		peers = append(peers, inst.Peer())
	}
	sortPeers(peers)
	return peers, nil
}

func (c *Catalog) ListActiveInstances(ctx context.Context) ([]cluster.Peer, error) {
	peers, err := c.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	return activeOnly(peers), nil
}

func (c *Catalog) GetInstance(_ context.Context, id int64) (cluster.Peer, error) {
	inst, err := c.Lookup(strconv.FormatInt(id, 10))
	if err != nil {
		return cluster.Peer{}, err
	}
	return inst.Peer(), nil
}

func (c *Catalog) UpdateInstanceMetadata(_ context.Context, id int64, fields map[string]string) error {
	return c.Merge(strconv.FormatInt(id, 10), fields)
}

func (c *Catalog) GetInstanceHealth(_ context.Context, id int64) (cluster.HealthStatus, error) {
	inst, err := c.Lookup(strconv.FormatInt(id, 10))
	if err != nil {
		return cluster.HealthUnknown, err
	}
	return inst.Status, nil
}

var _ Gateway = (*Catalog)(nil)
