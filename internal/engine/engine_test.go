package engine_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudrift-io/cloudstack-client/internal/engine"
	"github.com/cloudrift-io/cloudstack-client/internal/params"
	"github.com/cloudrift-io/cloudstack-client/internal/transport"
	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

func newTestEngine(t *testing.T, handler http.Handler, mutate func(*engine.Options)) (*engine.Engine, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts := engine.Options{
		Transport:    transport.NewClient(server.URL),
		Signer:       params.NewSigner("secret"),
		APIKey:       "api-key",
		Timeout:      5 * time.Second,
		PollInterval: time.Millisecond,
		Expiration:   10 * time.Minute,
	}
	if mutate != nil {
		mutate(&opts)
	}

	return engine.New(opts), server
}

func jsonResponse(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestInvokeInjectsCredentials(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "api-key", q.Get("apiKey"))
		assert.Equal(t, "listVirtualMachines", q.Get("command"))
		assert.Equal(t, "json", q.Get("response"))
		assert.Equal(t, "3", q.Get("signatureVersion"))
		assert.NotEmpty(t, q.Get("expires"))
		assert.NotEmpty(t, q.Get("signature"))
		assert.Equal(t, "true", q.Get("listall"))

		jsonResponse(w, `{"listvirtualmachinesresponse":{"count":1,"virtualmachine":[{"id":"vm-1"}]}}`)
	}), nil)

	result, err := eng.Invoke(context.Background(), "listVirtualMachines",
		map[string]any{"listall": true})
	require.NoError(t, err)

	assert.Equal(t, 200, result.Status)
	assert.Equal(t, float64(1), result.Payload["count"])
}

func TestInvokeInjectedKeysWinCaseInsensitively(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "api-key", q.Get("apiKey"))
		assert.Empty(t, q.Get("APIKEY"))
		assert.Equal(t, "json", q.Get("response"))

		jsonResponse(w, `{"r":{}}`)
	}), nil)

	_, err := eng.Invoke(context.Background(), "listZones",
		map[string]any{"APIKEY": "forged", "Response": "xml"})
	require.NoError(t, err)
}

func TestInvokeExpirationDisabled(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Empty(t, q.Get("expires"))
		assert.Empty(t, q.Get("signatureVersion"))

		jsonResponse(w, `{"r":{}}`)
	}), func(o *engine.Options) { o.Expiration = -1 })

	_, err := eng.Invoke(context.Background(), "listZones", nil)
	require.NoError(t, err)
}

func TestInvokeCallerExpiresWins(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2030-01-01T00:00:00+0000", r.URL.Query().Get("expires"))

		jsonResponse(w, `{"r":{}}`)
	}), nil)

	_, err := eng.Invoke(context.Background(), "listZones",
		map[string]any{"expires": "2030-01-01T00:00:00+0000"})
	require.NoError(t, err)
}

func TestInvokeFetchListAggregatesPages(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		pages   []string
		expires []string
	)

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		mu.Lock()
		pages = append(pages, q.Get("page"))
		expires = append(expires, q.Get("expires"))
		mu.Unlock()

		assert.Equal(t, "500", q.Get("pagesize"))

		switch q.Get("page") {
		case "1":
			jsonResponse(w, `{"listvirtualmachinesresponse":{"count":3,"virtualmachine":[{"id":"vm-1"},{"id":"vm-2"}]}}`)
		default:
			jsonResponse(w, `{"listvirtualmachinesresponse":{"count":3,"virtualmachine":[{"id":"vm-3"}]}}`)
		}
	}), nil)

	result, err := eng.Invoke(context.Background(), "listVirtualMachines", nil,
		cloudstack.FetchList())
	require.NoError(t, err)

	require.Len(t, result.Items, 3)
	assert.Equal(t, []string{"1", "2"}, pages)
	assert.Equal(t, expires[0], expires[1])
}

func TestInvokePageArgumentTriggersPageSizeDefault(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("Page"))
		assert.Equal(t, "500", q.Get("pagesize"))

		jsonResponse(w, `{"listzonesresponse":{"count":0}}`)
	}), nil)

	_, err := eng.Invoke(context.Background(), "listZones",
		map[string]any{"Page": 2})
	require.NoError(t, err)
}

func TestInvokeFetchListCustomPageSize(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("pagesize"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == 1 {
			jsonResponse(w, `{"listzonesresponse":{"count":3,"zone":[{"id":"z-1"},{"id":"z-2"}]}}`)

			return
		}

		jsonResponse(w, `{"listzonesresponse":{"count":3,"zone":[{"id":"z-3"}]}}`)
	}), nil)

	result, err := eng.Invoke(context.Background(), "listZones", nil,
		cloudstack.FetchList(), cloudstack.WithPageSize(2))
	require.NoError(t, err)
	assert.Len(t, result.Items, 3)
}

func TestInvokeFetchListStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			// No count field: the page-size fallback keeps the loop going.
			jsonResponse(w, `{"listzonesresponse":{"zone":[{"id":"z-1"}]}}`)

			return
		}

		jsonResponse(w, `{"listzonesresponse":{}}`)
	}), nil)

	result, err := eng.Invoke(context.Background(), "listZones", nil, cloudstack.FetchList())
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
}

func TestInvokeFetchResultPollsJob(t *testing.T) {
	t.Parallel()

	var polls int

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("command") {
		case "deployVirtualMachine":
			jsonResponse(w, `{"deployvirtualmachineresponse":{"jobid":"job-1"}}`)
		case "queryAsyncJobResult":
			assert.Equal(t, "job-1", r.URL.Query().Get("jobid"))

			polls++
			if polls < 3 {
				jsonResponse(w, `{"queryasyncjobresultresponse":{"jobstatus":0,"jobresultcode":0}}`)

				return
			}

			jsonResponse(w, `{"queryasyncjobresultresponse":{"jobstatus":1,"jobresultcode":0,"jobresult":{"virtualmachine":{"id":"vm-1"}}}}`)
		}
	}), nil)

	result, err := eng.Invoke(context.Background(), "deployVirtualMachine",
		map[string]any{"name": "web-01"}, cloudstack.FetchResult())
	require.NoError(t, err)

	vm, ok := result.Payload["virtualmachine"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "vm-1", vm["id"])
	assert.Equal(t, 3, polls)
}

func TestInvokeWithoutFetchResultReturnsJobID(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "deployVirtualMachine", r.URL.Query().Get("command"))

		jsonResponse(w, `{"deployvirtualmachineresponse":{"jobid":"job-1"}}`)
	}), nil)

	result, err := eng.Invoke(context.Background(), "deployVirtualMachine", nil)
	require.NoError(t, err)
	assert.Equal(t, "job-1", result.Payload["jobid"])
}

func TestInvokeJobFailure(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("command") == "destroyVirtualMachine" {
			jsonResponse(w, `{"destroyvirtualmachineresponse":{"jobid":"job-2"}}`)

			return
		}

		jsonResponse(w, `{"queryasyncjobresultresponse":{"jobstatus":2,"jobresultcode":530,"jobresult":{"errorcode":530,"errortext":"insufficient capacity"}}}`)
	}), nil)

	_, err := eng.Invoke(context.Background(), "destroyVirtualMachine", nil,
		cloudstack.FetchResult())
	require.Error(t, err)
	assert.True(t, cloudstack.IsJobFailure(err))
	assert.Contains(t, err.Error(), "insufficient capacity")
}

func TestInvokeJobScalarResult(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("command") == "expungeVirtualMachine" {
			jsonResponse(w, `{"expungevirtualmachineresponse":{"jobid":"job-6"}}`)

			return
		}

		jsonResponse(w, `{"queryasyncjobresultresponse":{"jobstatus":1,"jobresultcode":0,"jobresult":true}}`)
	}), nil)

	result, err := eng.Invoke(context.Background(), "expungeVirtualMachine", nil,
		cloudstack.FetchResult())
	require.NoError(t, err)
	assert.Equal(t, true, result.Payload["jobresult"])
}

func TestInvokeJobMissingResult(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("command") == "rebootVirtualMachine" {
			jsonResponse(w, `{"rebootvirtualmachineresponse":{"jobid":"job-3"}}`)

			return
		}

		jsonResponse(w, `{"queryasyncjobresultresponse":{"jobstatus":1,"jobresultcode":0}}`)
	}), nil)

	_, err := eng.Invoke(context.Background(), "rebootVirtualMachine", nil,
		cloudstack.FetchResult())
	require.Error(t, err)
	assert.True(t, cloudstack.IsProtocolError(err))
}

func TestInvokeJobTimeout(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("command") == "deployVirtualMachine" {
			jsonResponse(w, `{"deployvirtualmachineresponse":{"jobid":"job-4"}}`)

			return
		}

		jsonResponse(w, `{"queryasyncjobresultresponse":{"jobstatus":0,"jobresultcode":0}}`)
	}), func(o *engine.Options) { o.JobTimeout = 10 * time.Millisecond })

	_, err := eng.Invoke(context.Background(), "deployVirtualMachine", nil,
		cloudstack.FetchResult())
	require.Error(t, err)
	assert.True(t, cloudstack.IsJobTimeout(err))
}

func TestInvokeJobCancellationCarriesLastPayload(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	var polls int

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("command") == "deployVirtualMachine" {
			jsonResponse(w, `{"deployvirtualmachineresponse":{"jobid":"job-5"}}`)

			return
		}

		jsonResponse(w, `{"queryasyncjobresultresponse":{"jobstatus":0,"jobresultcode":0}}`)

		polls++
		if polls == 2 {
			// Let the poll response reach the client before cancelling.
			time.AfterFunc(5*time.Millisecond, cancel)
		}
	}), nil)

	result, err := eng.Invoke(ctx, "deployVirtualMachine", nil, cloudstack.FetchResult())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, float64(0), result.Payload["jobstatus"])
}

func TestInvokeNormalizesArguments(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "eggs,spam", q.Get("names"))
		assert.Equal(t, "value", q.Get("details[0].key"))

		jsonResponse(w, `{"r":{}}`)
	}), nil)

	_, err := eng.Invoke(context.Background(), "listThings", map[string]any{
		"names":   []string{"eggs", "spam"},
		"details": map[string]any{"key": "value"},
		"skipped": nil,
	})
	require.NoError(t, err)
}

func TestInvokeUnsupportedArgument(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}), nil)

	_, err := eng.Invoke(context.Background(), "listZones",
		map[string]any{"bad": struct{}{}})
	require.Error(t, err)
	assert.True(t, cloudstack.IsInputError(err))
}

func TestInvokeXMLFormat(t *testing.T) {
	t.Parallel()

	eng, _ := newTestEngine(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("response"))

		w.Header().Set("Content-Type", "text/xml")
		fmt.Fprint(w, `<listzonesresponse><count>1</count></listzonesresponse>`)
	}), nil)

	result, err := eng.Invoke(context.Background(), "listZones", nil,
		cloudstack.WithFormat(cloudstack.FormatXML))
	require.NoError(t, err)
	require.NotNil(t, result.XML)
	assert.Equal(t, "listzonesresponse", result.XML.Tag)
}
