// Package csclient creates CloudStack API clients.
//
// It validates the configuration, assembles the TLS-aware HTTP session, and
// wires the signing, transport, pagination, and job-polling layers together
// behind the cloudstack.Client interface:
//
//	cli, err := csclient.New(&cloudstack.Config{
//	  Endpoint: "https://cloud.example.com/client/api",
//	  APIKey:   os.Getenv("CLOUDSTACK_KEY"),
//	  Secret:   os.Getenv("CLOUDSTACK_SECRET"),
//	})
package csclient
