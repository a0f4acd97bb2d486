package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hops/internal/param"
)

const areaIO = `{
	"Description": "Area of a circle",
	"Inputs": [{"Name":"Radius","ParamType":"Number","AtLeast":1,"AtMost":1,"Default":5.0}],
	"Outputs": [{"Name":"Area","ParamType":"Number"}]
}`

func TestEndpointTransport_DescribeAndSolve(t *testing.T) {
	var solved Schema
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(areaIO))
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&solved))
			tree, err := NewDataTree("Area", param.KindNumber, []any{78.5})
			require.NoError(t, err)
			_ = json.NewEncoder(w).Encode(Schema{Values: []DataTree{tree}})
		}
	}))
	defer server.Close()

	transport := NewEndpointTransport(server.URL+"/area", server.Client())
	assert.Equal(t, server.URL+"/area", transport.Pointer())

	described, err := transport.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Area of a circle", described.Description)
	require.Len(t, described.Inputs, 1)
	assert.Equal(t, param.KindNumber, described.Inputs[0].Kind)
	assert.Equal(t, 5.0, described.Inputs[0].Default)

	output, err := transport.Solve(context.Background(), radiusSchema(t, 5))
	require.NoError(t, err)
	tree, ok := output.Value("Area")
	require.True(t, ok)
	assert.Equal(t, "78.5", tree.InnerTree[DefaultPath][0].Data)

	_, ok = solved.Value("Radius")
	assert.True(t, ok)
}

func TestComputeTransport_PostsPointer(t *testing.T) {
	var ioRequest IORequest
	var solvePath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/io":
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ioRequest))
			_, _ = w.Write([]byte(areaIO))
		case "/solve":
			solvePath = r.URL.Path
			_, _ = w.Write([]byte(`{"values":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	transport := NewComputeTransport(server.URL+"/", "area", server.Client())

	_, err := transport.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "area", ioRequest.Pointer)

	_, err = transport.Solve(context.Background(), &Schema{Pointer: "area"})
	require.NoError(t, err)
	assert.Equal(t, "/solve", solvePath)
}

func TestHTTPTransport_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	_, err := NewEndpointTransport(server.URL, server.Client()).Describe(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefinitionNotFound))
}

func TestHTTPTransport_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "solver exploded", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewEndpointTransport(server.URL, server.Client()).Solve(context.Background(), &Schema{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "solver exploded")
}

func TestHTTPTransport_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewEndpointTransport(url, http.DefaultClient).Describe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send request")
}

func TestDefaultDialer(t *testing.T) {
	dialer := NewDialer(DialerOptions{Servers: []string{"http://localhost:6500"}})

	transport, err := dialer.Dial(context.Background(), "http://localhost:5000/add")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/add", transport.Pointer())

	transport, err = dialer.Dial(context.Background(), "area")
	require.NoError(t, err)
	assert.Equal(t, "area", transport.Pointer())

	_, err = dialer.Dial(context.Background(), "  ")
	assert.Error(t, err)
}

func TestDefaultDialer_NoServers(t *testing.T) {
	_, err := NewDialer(DialerOptions{}).Dial(context.Background(), "area")
	require.Error(t, err)
	assert.True(t, IsRemoteUnavailable(err))
}

func TestDefaultDialer_NoMCPSolver(t *testing.T) {
	_, err := NewDialer(DialerOptions{}).Dial(context.Background(), "mcp:area")
	require.Error(t, err)
	assert.True(t, IsRemoteUnavailable(err))
	assert.Contains(t, err.Error(), "no MCP solver configured")
}
