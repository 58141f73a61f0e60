package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dreamware/primus/internal/cluster"
	"github.com/dreamware/primus/internal/node"
)

// Election is the part of the election coordinator reachable over HTTP.
type Election interface {
	HandleInvoke(invokerID int64)
	HandleLeaderElected(leaderID int64)
	Readiness() cluster.ElectionReadiness
}

type Proposer interface {
	Check(ctx context.Context, req cluster.PrimeCheckRequest) (cluster.Verdict, error)
}

type Acceptor interface {
	Verify(ctx context.Context, v cluster.Verdict, proposedBy int64) (cluster.LearnerResponse, error)
}

type Learner interface {
	SetProposerCount(n int)
	Accept(ctx context.Context, r cluster.LearnerResponse) (bool, error)
}

// Leader receives the reports addressed to the acting leader.
type Leader interface {
	HandleError(ctx context.Context, req cluster.PrimeCheckRequest, madeBy int64) error
	HandleConsensus(ctx context.Context, result cluster.ConsensusResult) error
}

// Handlers are the components a Server dispatches to.
type Handlers struct {
	Election Election
	Proposer Proposer
	Acceptor Acceptor
	Learner  Learner
	Leader   Leader
}

// Server routes the peer protocol of one node onto its components.
type Server struct {
	self *node.Identity
	h    Handlers
	log  logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewServer(self *node.Identity, h Handlers, log logrus.FieldLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		self:   self,
		h:      h,
		log:    log.WithField("component", "api"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Routes registers every protocol route on r.
func (s *Server) Routes(r *mux.Router) {
	r.HandleFunc(cluster.PathHealth, s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc(cluster.PathInformation, s.handleInformation).Methods(http.MethodGet)
	r.HandleFunc(cluster.PathElection, s.handleElection).Methods(http.MethodPost)
	r.HandleFunc(cluster.PathElectionReady, s.handleElectionReady).Methods(http.MethodGet)
	r.HandleFunc(cluster.PathElectionCompleted, s.handleElectionCompleted).Methods(http.MethodPost)
	r.HandleFunc(cluster.PathRoleAlert, s.handleRoleAlert).Methods(http.MethodPost)
	r.HandleFunc(cluster.PathProposerCount, s.handleProposerCount).Methods(http.MethodPost)
	r.HandleFunc(cluster.PathLeaderConsensus, s.handleConsensus).Methods(http.MethodPost)
	r.HandleFunc(cluster.PathProposerCheck, s.handleProposerCheck).Methods(http.MethodPost)
	r.HandleFunc(cluster.PathAcceptorResponse, s.handleAcceptorResponse).Methods(http.MethodPost)
	r.HandleFunc(cluster.PathLearnerResponse, s.handleLearnerResponse).Methods(http.MethodPost)
	r.HandleFunc(cluster.PathLeaderError, s.handleLeaderError).Methods(http.MethodPost)
}

// Handler returns a router serving only the protocol routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Routes(r)
	return r
}

// Close stops accepting background work and waits for the work in flight.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// async runs fn after the request has been acknowledged. The context is
// detached from the request and ends with Close.
func (s *Server) async(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) accepted(w http.ResponseWriter, fn func(ctx context.Context)) {
	if !s.async(fn) {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	cluster.WriteAck(w, "OK")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleInformation(w http.ResponseWriter, _ *http.Request) {
	cluster.WriteJSON(w, http.StatusOK, s.self.Information())
}

func (s *Server) handleElection(w http.ResponseWriter, r *http.Request) {
	var req cluster.ElectionInvokeRequest
	if !decode(w, r, &req) {
		return
	}
	s.h.Election.HandleInvoke(req.InvokeNodeID)
	cluster.WriteAck(w, "OK")
}

func (s *Server) handleElectionReady(w http.ResponseWriter, _ *http.Request) {
	cluster.WriteJSON(w, http.StatusOK, s.h.Election.Readiness())
}

func (s *Server) handleElectionCompleted(w http.ResponseWriter, r *http.Request) {
	var req cluster.LeaderElectedRequest
	if !decode(w, r, &req) {
		return
	}
	if req.LeaderID == 0 {
		http.Error(w, "leaderId is required", http.StatusBadRequest)
		return
	}
	s.h.Election.HandleLeaderElected(req.LeaderID)
	cluster.WriteAck(w, "OK")
}

func (s *Server) handleRoleAlert(w http.ResponseWriter, r *http.Request) {
	var req cluster.RoleAlertRequest
	if !decode(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		http.Error(w, "unknown role", http.StatusBadRequest)
		return
	}
	s.self.SetRole(req.Role)
	s.log.WithFields(logrus.Fields{"node": s.self.ID(), "role": req.Role}).Info("role assigned")
	cluster.WriteJSON(w, http.StatusOK, cluster.RoleAlertResponse{Role: req.Role, ID: s.self.ID()})
}

func (s *Server) handleProposerCount(w http.ResponseWriter, r *http.Request) {
	var req cluster.ProposerCountRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ProposerCount < 0 {
		http.Error(w, "proposerCount must not be negative", http.StatusBadRequest)
		return
	}
	s.h.Learner.SetProposerCount(req.ProposerCount)
	cluster.WriteAck(w, "OK")
}

func (s *Server) handleProposerCheck(w http.ResponseWriter, r *http.Request) {
	var req cluster.PrimeCheckRequest
	if !decode(w, r, &req) {
		return
	}
	s.accepted(w, func(ctx context.Context) {
		// failures are logged by the proposer
		_, _ = s.h.Proposer.Check(ctx, req)
	})
}

func (s *Server) handleAcceptorResponse(w http.ResponseWriter, r *http.Request) {
	var req cluster.AcceptorRequest
	if !decode(w, r, &req) {
		return
	}
	s.accepted(w, func(ctx context.Context) {
		_, _ = s.h.Acceptor.Verify(ctx, req.PrimeResponse, req.ProposedBy)
	})
}

func (s *Server) handleLearnerResponse(w http.ResponseWriter, r *http.Request) {
	var req cluster.LearnerRequest
	if !decode(w, r, &req) {
		return
	}
	if _, err := s.h.Learner.Accept(r.Context(), req.Result); err != nil {
		writeError(w, err)
		return
	}
	cluster.WriteAck(w, "OK")
}

func (s *Server) requireLeader(w http.ResponseWriter) bool {
	if !s.self.IsLeader() {
		writeError(w, ErrNotLeader)
		return false
	}
	return true
}

func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	var req cluster.ConsensusRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.requireLeader(w) {
		return
	}
	s.accepted(w, func(ctx context.Context) {
		if err := s.h.Leader.HandleConsensus(ctx, req.Consensus); err != nil {
			s.log.WithError(err).WithField("number", req.Consensus.Number).Warn("consensus handling failed")
		}
	})
}

func (s *Server) handleLeaderError(w http.ResponseWriter, r *http.Request) {
	var req cluster.LeaderErrorRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.requireLeader(w) {
		return
	}
	s.accepted(w, func(ctx context.Context) {
		if err := s.h.Leader.HandleError(ctx, req.Request, req.MadeBy); err != nil {
			s.log.WithError(err).WithField("request", req.Request.String()).Warn("error report handling failed")
		}
	})
}
