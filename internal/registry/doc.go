// Package registry is the peers' view of the service registry: who is
// registered, how healthy they are and which role each one holds.
//
// Gateway is implemented twice. Catalog keeps everything in process and is
// what the registry server and single-process simulations use. Client talks
// to a registry server over a subset of the Consul agent API:
//
//	PUT /v1/agent/service/register          upsert an instance
//	PUT /v1/agent/service/deregister/{id}   remove it
//	GET /v1/agent/services                  list instances by id
//	GET /v1/agent/health/service/id/{id}    AggregatedStatus plus the instance
//
// Metadata updates are re-registrations with merged Meta. HealthMonitor
// polls each instance's check URL; three consecutive failures make it
// critical, and only critical instances are excluded from
// ListActiveInstances.
//
// Directory caches role lookups for a few seconds in front of a Gateway.
package registry
