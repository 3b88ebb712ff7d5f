// Package web exposes the daemon's HTTP API: deploy requests, health and
// metrics.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"sigs.k8s.io/yaml"

	"github.com/fiaas/deployd/internal/config"
	"github.com/fiaas/deployd/internal/constants"
	deployderrors "github.com/fiaas/deployd/internal/errors"
	"github.com/fiaas/deployd/internal/logging"
	"github.com/fiaas/deployd/internal/spec"
)

// Resolver turns raw configuration documents into canonical specs.
type Resolver interface {
	Resolve(name, image string, doc map[string]any, teams, tags []string, deploymentID, namespace string) (*spec.AppSpec, error)
}

// Deployer commits and removes workloads for resolved specs.
type Deployer interface {
	Deploy(ctx context.Context, appSpec *spec.AppSpec, selector, labels map[string]string, besteffortRequired bool) error
	Delete(ctx context.Context, appSpec *spec.AppSpec) error
}

// DeployRequest is the wire form of a deploy or delete request. Config holds
// the application's configuration document as a YAML string.
type DeployRequest struct {
	Name         string   `json:"name"`
	Image        string   `json:"image"`
	Namespace    string   `json:"namespace"`
	Teams        []string `json:"teams,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	DeploymentID string   `json:"deployment_id,omitempty"`
	Config       string   `json:"config,omitempty"`
}

// DeployResponse reports the identity assigned to an accepted request.
type DeployResponse struct {
	Name         string `json:"name"`
	Namespace    string `json:"namespace"`
	DeploymentID string `json:"deployment_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the daemon's HTTP API.
type Server struct {
	resolver           Resolver
	deployer           Deployer
	besteffortRequired bool
	listenAddress      string
	log                logr.Logger
}

func NewServer(resolver Resolver, deployer Deployer, cfg *config.Config, log logr.Logger) *Server {
	return &Server{
		resolver:           resolver,
		deployer:           deployer,
		besteffortRequired: cfg.BesteffortQOSRequired,
		listenAddress:      cfg.ListenAddress,
		log:                log.WithName("web"),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/deploy", s.handleDeploy)
	mux.HandleFunc("DELETE /api/deploy", s.handleDelete)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves the API until the context is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.listenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "address", s.listenAddress)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	request, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if request.DeploymentID == "" {
		request.DeploymentID = uuid.NewString()
	}

	doc := map[string]any{}
	if request.Config != "" {
		if err := yaml.Unmarshal([]byte(request.Config), &doc); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid config document: %w", err))
			return
		}
	}

	appSpec, err := s.resolver.Resolve(
		request.Name, request.Image, doc, request.Teams, request.Tags, request.DeploymentID, request.Namespace)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	selector := map[string]string{constants.LabelApp: appSpec.Name}
	labels := map[string]string{
		constants.LabelApp:          appSpec.Name,
		constants.LabelDeploymentID: appSpec.DeploymentID,
	}
	if err := s.deployer.Deploy(r.Context(), appSpec, selector, labels, s.besteffortRequired); err != nil {
		s.log.Error(err, "deploy failed", "app", appSpec.Name, "namespace", appSpec.Namespace)
		s.writeError(w, statusFor(err), err)
		return
	}

	logging.AuditEvent(s.log, "deploy", appSpec.Name, appSpec.Namespace, appSpec.DeploymentID)
	s.writeJSON(w, http.StatusOK, DeployResponse{
		Name:         appSpec.Name,
		Namespace:    appSpec.Namespace,
		DeploymentID: appSpec.DeploymentID,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	request, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	appSpec := &spec.AppSpec{Name: request.Name, Namespace: request.Namespace}
	if err := s.deployer.Delete(r.Context(), appSpec); err != nil {
		s.log.Error(err, "delete failed", "app", request.Name, "namespace", request.Namespace)
		s.writeError(w, statusFor(err), err)
		return
	}
	logging.AuditEvent(s.log, "delete", request.Name, request.Namespace, request.DeploymentID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (*DeployRequest, bool) {
	request := &DeployRequest{}
	if err := json.NewDecoder(r.Body).Decode(request); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return nil, false
	}
	if request.Name == "" || request.Namespace == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("name and namespace are required"))
		return nil, false
	}
	return request, true
}

// statusFor maps an error to the API status code: configuration problems are
// the caller's fault, write conflicts that survived retrying are reported as
// such, and everything else is a server error.
func statusFor(err error) int {
	switch {
	case deployderrors.IsInvalidConfiguration(err):
		return http.StatusBadRequest
	case apierrors.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error(err, "failed to encode response")
	}
}
