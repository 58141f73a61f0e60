package registry

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/cluster"
)

// Registry routes, a subset of the Consul agent API.
const (
	PathRegister      = "/v1/agent/service/register"
	PathDeregister    = "/v1/agent/service/deregister/{id}"
	PathServices      = "/v1/agent/services"
	PathServiceHealth = "/v1/agent/health/service/id/{id}"
)

// ServiceHealth is the body of the per-instance health route.
type ServiceHealth struct {
	AggregatedStatus cluster.HealthStatus `json:"AggregatedStatus"`
	Service          Instance             `json:"Service"`
}

// Server exposes a Catalog over HTTP.
type Server struct {
	catalog *Catalog
	log     logrus.FieldLogger
}

func NewServer(catalog *Catalog, log logrus.FieldLogger) *Server {
	return &Server{catalog: catalog, log: log.WithField("component", "registry")}
}

// Routes registers the registry endpoints on r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc(PathRegister, s.handleRegister).Methods(http.MethodPut)
	r.HandleFunc(PathDeregister, s.handleDeregister).Methods(http.MethodPut)
	r.HandleFunc(PathServices, s.handleServices).Methods(http.MethodGet)
	r.HandleFunc(PathServiceHealth, s.handleServiceHealth).Methods(http.MethodGet)
	r.HandleFunc(cluster.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
}

// Handler returns a router serving only the registry endpoints.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Routes(r)
	return r
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var inst Instance
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.catalog.Put(inst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.log.WithFields(logrus.Fields{"instance": inst.ID, "addr": inst.Address, "port": inst.Port}).Debug("registered")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.catalog.Remove(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.log.WithField("instance", id).Info("deregistered")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]Instance)
	for _, inst := range s.catalog.All() {
		out[inst.ID] = inst
	}
	cluster.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	inst, err := s.catalog.Lookup(mux.Vars(r)["id"])
	if errors.Is(err, ErrInstanceNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	cluster.WriteJSON(w, http.StatusOK, ServiceHealth{AggregatedStatus: inst.Status, Service: inst})
}
