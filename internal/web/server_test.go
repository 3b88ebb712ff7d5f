package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/fiaas/deployd/internal/config"
	deployderrors "github.com/fiaas/deployd/internal/errors"
	"github.com/fiaas/deployd/internal/spec"
)

type fakeResolver struct {
	err      error
	lastDoc  map[string]any
	lastName string
}

func (f *fakeResolver) Resolve(name, image string, doc map[string]any, teams, tags []string, deploymentID, namespace string) (*spec.AppSpec, error) {
	f.lastDoc = doc
	f.lastName = name
	if f.err != nil {
		return nil, f.err
	}
	return &spec.AppSpec{Name: name, Namespace: namespace, Image: image, DeploymentID: deploymentID}, nil
}

type fakeDeployer struct {
	deployErr    error
	deleteErr    error
	lastSpec     *spec.AppSpec
	lastSelector map[string]string
	lastLabels   map[string]string
	deleted      *spec.AppSpec
}

func (f *fakeDeployer) Deploy(ctx context.Context, appSpec *spec.AppSpec, selector, labels map[string]string, besteffortRequired bool) error {
	f.lastSpec = appSpec
	f.lastSelector = selector
	f.lastLabels = labels
	return f.deployErr
}

func (f *fakeDeployer) Delete(ctx context.Context, appSpec *spec.AppSpec) error {
	f.deleted = appSpec
	return f.deleteErr
}

func newTestServer(resolver *fakeResolver, deployer *fakeDeployer) *Server {
	return NewServer(resolver, deployer, &config.Config{ListenAddress: ":0"}, logr.Discard())
}

func postDeploy(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, "/api/deploy", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)
	return recorder
}

func TestDeployEndpoint(t *testing.T) {
	resolver := &fakeResolver{}
	deployer := &fakeDeployer{}
	server := newTestServer(resolver, deployer)

	body := `{
		"name": "app1",
		"image": "registry.example.com/app1:1.2.3",
		"namespace": "default",
		"deployment_id": "some-id",
		"config": "version: 3\nreplicas: 2\n"
	}`
	recorder := postDeploy(t, server, body)

	require.Equal(t, http.StatusOK, recorder.Code)

	response := DeployResponse{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, "app1", response.Name)
	assert.Equal(t, "default", response.Namespace)
	assert.Equal(t, "some-id", response.DeploymentID)

	// The YAML config document reaches the resolver as a generic map.
	assert.Equal(t, float64(3), resolver.lastDoc["version"])

	assert.Equal(t, map[string]string{"app": "app1"}, deployer.lastSelector)
	assert.Equal(t, map[string]string{"app": "app1", "fiaas/deployment_id": "some-id"}, deployer.lastLabels)
}

func TestDeployEndpointGeneratesDeploymentID(t *testing.T) {
	server := newTestServer(&fakeResolver{}, &fakeDeployer{})

	recorder := postDeploy(t, server, `{"name": "app1", "image": "img", "namespace": "default"}`)

	require.Equal(t, http.StatusOK, recorder.Code)
	response := DeployResponse{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.NotEmpty(t, response.DeploymentID)
}

func TestDeployEndpointRejectsMissingIdentity(t *testing.T) {
	server := newTestServer(&fakeResolver{}, &fakeDeployer{})

	recorder := postDeploy(t, server, `{"image": "img"}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDeployEndpointRejectsMalformedConfig(t *testing.T) {
	server := newTestServer(&fakeResolver{}, &fakeDeployer{})

	recorder := postDeploy(t, server, `{"name": "app1", "image": "img", "namespace": "default", "config": ":\nnot yaml: ["}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestDeployEndpointInvalidConfiguration(t *testing.T) {
	resolver := &fakeResolver{err: deployderrors.NewInvalidConfiguration("bad spec")}
	server := newTestServer(resolver, &fakeDeployer{})

	recorder := postDeploy(t, server, `{"name": "app1", "image": "img", "namespace": "default"}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	response := errorResponse{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Contains(t, response.Error, "bad spec")
}

func TestDeployEndpointConflict(t *testing.T) {
	deployer := &fakeDeployer{
		deployErr: apierrors.NewConflict(
			schema.GroupResource{Group: "apps", Resource: "deployments"}, "app1", fmt.Errorf("object was modified")),
	}
	server := newTestServer(&fakeResolver{}, deployer)

	recorder := postDeploy(t, server, `{"name": "app1", "image": "img", "namespace": "default"}`)

	assert.Equal(t, http.StatusConflict, recorder.Code)
}

func TestDeployEndpointInternalError(t *testing.T) {
	deployer := &fakeDeployer{deployErr: fmt.Errorf("cluster unavailable")}
	server := newTestServer(&fakeResolver{}, deployer)

	recorder := postDeploy(t, server, `{"name": "app1", "image": "img", "namespace": "default"}`)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	deployer := &fakeDeployer{}
	server := newTestServer(&fakeResolver{}, deployer)

	request := httptest.NewRequest(http.MethodDelete, "/api/deploy",
		strings.NewReader(`{"name": "app1", "namespace": "default"}`))
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	require.NotNil(t, deployer.deleted)
	assert.Equal(t, "app1", deployer.deleted.Name)
	assert.Equal(t, "default", deployer.deleted.Namespace)
}

func TestHealthzEndpoint(t *testing.T) {
	server := newTestServer(&fakeResolver{}, &fakeDeployer{})

	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusOK, recorder.Code)
}
