package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/exp/slices"

	"github.com/dreamware/primus/internal/cluster"
)

var (
	// ErrInstanceNotFound is returned for ids the registry does not know.
	ErrInstanceNotFound = errors.New("registry: instance not found")

	// ErrInvalidInstance is returned when a registration is missing its id,
	// address or port, or the id is not a node id.
	ErrInvalidInstance = errors.New("registry: invalid instance")

	// ErrLearnerUnavailable is returned when no active peer holds the
	// learner role.
	ErrLearnerUnavailable = errors.New("registry: learner not available")
)

// MetaRole is the metadata key holding a peer's role.
const MetaRole = "role"

// Instance is one registered service instance. The field names follow the
// Consul agent API.
type Instance struct {
	Meta    map[string]string    `json:"Meta,omitempty"`
	Check   *Check               `json:"Check,omitempty"`
	ID      string               `json:"ID"`
	Name    string               `json:"Name"`
	Address string               `json:"Address"`
	Status  cluster.HealthStatus `json:"Status,omitempty"`
	Port    int                  `json:"Port"`
}

// Check describes the HTTP health check of an instance.
type Check struct {
	HTTP     string `json:"HTTP"`
	Interval string `json:"Interval,omitempty"`
}

// NewInstance describes the peer p registered under name with an HTTP
// check on its health route.
func NewInstance(name string, p cluster.Peer) Instance {
	inst := Instance{
		ID:      strconv.FormatInt(p.NodeID, 10),
		Name:    name,
		Address: p.IP,
		Port:    p.Port,
		Meta:    map[string]string{},
		Check:   &Check{HTTP: "http://" + p.Addr() + cluster.PathHealth, Interval: "10s"},
	}
	if p.Role != cluster.RoleNone {
		inst.Meta[MetaRole] = string(p.Role)
	}
	return inst
}

func (i Instance) Validate() error {
	if i.ID == "" || i.Address == "" || i.Port <= 0 {
		return fmt.Errorf("%w: id, address and port are required", ErrInvalidInstance)
	}
	if _, err := strconv.ParseInt(i.ID, 10, 64); err != nil {
		return fmt.Errorf("%w: id %q is not numeric", ErrInvalidInstance, i.ID)
	}
	return nil
}

// Peer converts the instance to the descriptor the protocol works with.
func (i Instance) Peer() cluster.Peer {
	id, _ := strconv.ParseInt(i.ID, 10, 64)
	return cluster.Peer{
		NodeID: id,
		IP:     i.Address,
		Port:   i.Port,
		Role:   cluster.Role(i.Meta[MetaRole]),
		Health: i.Status,
	}
}

func (i Instance) clone() Instance {
	out := i
	out.Meta = make(map[string]string, len(i.Meta))
	for k, v := range i.Meta {
		out.Meta[k] = v
	}
	if i.Check != nil {
		c := *i.Check
		out.Check = &c
	}
	return out
}

// mergeMeta applies fields onto meta. An empty value removes the key.
func mergeMeta(meta, fields map[string]string) map[string]string {
	if meta == nil {
		meta = map[string]string{}
	}
	for k, v := range fields {
		if v == "" {
			delete(meta, k)
			continue
		}
		meta[k] = v
	}
	return meta
}

// Active reports whether a peer with status s may be given work. Only a
// critical status excludes a peer; unknown means not yet checked.
func Active(s cluster.HealthStatus) bool {
	return s != cluster.HealthCritical
}

// Gateway is the view of the service registry used by the peers.
type Gateway interface {
	Register(ctx context.Context, inst Instance) error
	Deregister(ctx context.Context, id int64) error

	// ListInstances returns every registered peer sorted by node id.
	ListInstances(ctx context.Context) ([]cluster.Peer, error)

	// ListActiveInstances is ListInstances without critical peers.
	ListActiveInstances(ctx context.Context) ([]cluster.Peer, error)

	GetInstance(ctx context.Context, id int64) (cluster.Peer, error)
	UpdateInstanceMetadata(ctx context.Context, id int64, fields map[string]string) error
	GetInstanceHealth(ctx context.Context, id int64) (cluster.HealthStatus, error)
}

func sortPeers(peers []cluster.Peer) {
	slices.SortFunc(peers, func(a, b cluster.Peer) int { return cmp.Compare(a.NodeID, b.NodeID) })
}

func activeOnly(peers []cluster.Peer) []cluster.Peer {
	out := make([]cluster.Peer, 0, len(peers))
	for _, p := range peers {
		if Active(p.Health) {
			out = append(out, p)
		}
	}
	return out
}
