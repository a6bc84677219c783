// Package cloudstack provides the types, configuration, and error taxonomy
// for the CloudStack API client engine.
//
// # Overview
//
// The cloudstack package defines the public surface: the Client interface
// with its single Invoke entry point, the immutable Config consumed at
// construction time, the Result payload type, per-call options, and the
// classified error types (TransportError, ProtocolError, APIError, JobError,
// JobTimeoutError). A concrete implementation is provided by the csclient
// package, which wires parameter normalization, request signing, the
// retrying transport, pagination, and asynchronous job polling. Most
// consumers should import csclient to construct a client.
//
// Getting a client
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
//	  "github.com/cloudrift-io/cloudstack-client/pkg/csclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//	  cli, err := csclient.New(&cloudstack.Config{
//	    Endpoint: "https://cloud.example.com/client/api",
//	    APIKey:   "...",
//	    Secret:   "...",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  // Aggregate every page of a listing command.
//	  vms, err := cli.Invoke(ctx, "listVirtualMachines",
//	    map[string]any{"listall": true}, cloudstack.FetchList())
//	  if err != nil { log.Fatal(err) }
//	  _ = vms.Items
//	}
//
// # Commands
//
// The command vocabulary is open-ended; any command name the endpoint
// understands is valid. Arguments may be nil, strings, numbers, booleans,
// slices of scalars (comma-joined on the wire), or maps / slices of maps
// (expanded to indexed dotted keys, e.g. "details[0].memory").
//
// # Asynchronous jobs
//
// Commands that return a job identifier can be resolved to their final
// result with the FetchResult option, which polls queryAsyncJobResult until
// the job reaches a terminal state, tolerating brief network blips. Within
// one call, pagination pages and job polls are strictly sequential; distinct
// calls may run concurrently against the same client.
package cloudstack
