package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudrift-io/cloudstack-client/internal/transport"
	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

func TestSendGet(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "listVirtualMachines", r.URL.Query().Get("command"))
		assert.Equal(t, "json", r.URL.Query().Get("response"))
		assert.Equal(t, "sig", r.URL.Query().Get("signature"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"listvirtualmachinesresponse":{"count":1,"virtualmachine":[{"id":"vm-1"}]}}`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL)

	resp, err := client.Send(context.Background(), "listVirtualMachines", map[string]string{
		"command":   "listVirtualMachines",
		"response":  "json",
		"signature": "sig",
	}, nil, cloudstack.FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, float64(1), resp.Payload["count"])
}

func TestSendPostForm(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "deployVirtualMachine", r.PostForm.Get("command"))
		assert.Empty(t, r.URL.RawQuery)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"deployvirtualmachineresponse":{"jobid":"job-1"}}`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL, transport.WithMethod("post"))

	resp, err := client.Send(context.Background(), "deployVirtualMachine", map[string]string{
		"command": "deployVirtualMachine",
	}, nil, cloudstack.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.Payload["jobid"])
}

func TestSendHeaders(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "default", r.Header.Get("X-Default"))
		assert.Equal(t, "call", r.Header.Get("X-Call"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"r":{}}`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL,
		transport.WithHeaders(map[string]string{"X-Default": "default"}),
		transport.WithUserAgent("test-agent"))

	_, err := client.Send(context.Background(), "listZones", nil,
		map[string]string{"X-Call": "call"}, cloudstack.FormatJSON)
	require.NoError(t, err)
}

func TestSendAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errorresponse":{"errorcode":401,"errortext":"unable to verify user credentials"}}`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL)

	_, err := client.Send(context.Background(), "listVirtualMachines", nil, nil, cloudstack.FormatJSON)
	require.Error(t, err)

	apiErr, ok := cloudstack.IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 401, apiErr.StatusCode)
	assert.Equal(t, 401, apiErr.ErrorCode)
	assert.Equal(t, "unable to verify user credentials", apiErr.ErrorText)
}

func TestSendWrongContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html>login page</html>`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL)

	_, err := client.Send(context.Background(), "listVirtualMachines", nil, nil, cloudstack.FormatJSON)
	require.Error(t, err)
	assert.True(t, cloudstack.IsProtocolError(err))
	assert.Contains(t, err.Error(), "JSON (application/json) was expected")
}

func TestSendWrongContentTypeNon200(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`not found`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL)

	_, err := client.Send(context.Background(), "listVirtualMachines", nil, nil, cloudstack.FormatJSON)
	require.Error(t, err)
	assert.True(t, cloudstack.IsProtocolError(err))
	assert.Contains(t, err.Error(), "make sure endpoint URL")
}

func TestSendMultiKeyEnvelope(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":{},"b":{}}`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL)

	_, err := client.Send(context.Background(), "listVirtualMachines", nil, nil, cloudstack.FormatJSON)
	require.Error(t, err)
	assert.True(t, cloudstack.IsProtocolError(err))
}

func TestSendMalformedJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"truncated`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL)

	_, err := client.Send(context.Background(), "listVirtualMachines", nil, nil, cloudstack.FormatJSON)
	require.Error(t, err)
	assert.True(t, cloudstack.IsProtocolError(err))
}

func TestSendXML(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<listzonesresponse><count>1</count><zone><id>z-1</id></zone></listzonesresponse>`))
	}))
	defer server.Close()

	client := transport.NewClient(server.URL)

	resp, err := client.Send(context.Background(), "listZones", nil, nil, cloudstack.FormatXML)
	require.NoError(t, err)
	require.NotNil(t, resp.XML)

	assert.Equal(t, "listzonesresponse", resp.XML.Tag)
	assert.Equal(t, "1", resp.XML.SelectElement("count").Text())
}

func TestSendConnectionFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := transport.NewClient(server.URL,
		transport.WithRetry(2, time.Millisecond, 2*time.Millisecond))

	_, err := client.Send(context.Background(), "deployVirtualMachine", nil, nil, cloudstack.FormatJSON)
	require.Error(t, err)
	assert.True(t, cloudstack.IsTransportError(err))
}

func TestSendRetriesListCommands(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := transport.NewClient(server.URL,
		transport.WithRetry(1, time.Millisecond, 2*time.Millisecond))

	start := time.Now()
	_, err := client.Send(context.Background(), "listVirtualMachines", nil, nil, cloudstack.FormatJSON)
	require.Error(t, err)
	assert.True(t, cloudstack.IsTransportError(err))
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)
}

func TestSendTrace(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"r":{}}`))
	}))
	defer server.Close()

	recorder := &captureRecorder{}
	client := transport.NewClient(server.URL, transport.WithTraceRecorder(recorder))

	_, err := client.Send(context.Background(), "listZones", nil, nil, cloudstack.FormatJSON)
	require.NoError(t, err)

	require.Len(t, recorder.events, 2)
	assert.Equal(t, cloudstack.TraceRequest, recorder.events[0].Kind)
	assert.Equal(t, cloudstack.TraceResponse, recorder.events[1].Kind)
	assert.Equal(t, recorder.events[0].RequestID, recorder.events[1].RequestID)
	assert.NotEmpty(t, recorder.events[0].RequestID)
	assert.Equal(t, 200, recorder.events[1].Status)
}

func TestSendTracePostBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"deployvirtualmachineresponse":{"jobid":"job-1"}}`))
	}))
	defer server.Close()

	recorder := &captureRecorder{}
	client := transport.NewClient(server.URL,
		transport.WithMethod("post"),
		transport.WithTraceRecorder(recorder))

	_, err := client.Send(context.Background(), "deployVirtualMachine", map[string]string{
		"command": "deployVirtualMachine",
		"name":    "web-01",
	}, nil, cloudstack.FormatJSON)
	require.NoError(t, err)

	require.Len(t, recorder.events, 2)
	assert.Contains(t, recorder.events[0].Body, "command=deployVirtualMachine")
	assert.Contains(t, recorder.events[0].Body, "name=web-01")
}

func TestSendTraceGetBodyEmpty(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"r":{}}`))
	}))
	defer server.Close()

	recorder := &captureRecorder{}
	client := transport.NewClient(server.URL, transport.WithTraceRecorder(recorder))

	_, err := client.Send(context.Background(), "listZones", map[string]string{
		"command": "listZones",
	}, nil, cloudstack.FormatJSON)
	require.NoError(t, err)

	require.Len(t, recorder.events, 2)
	assert.Empty(t, recorder.events[0].Body)
	assert.Contains(t, recorder.events[0].URL, "command=listZones")
}

type captureRecorder struct {
	events []cloudstack.TraceEvent
}

func (r *captureRecorder) Record(event cloudstack.TraceEvent) {
	r.events = append(r.events, event)
}
