// Package csclient provides the main entry point for creating CloudStack API clients
package csclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/cloudrift-io/cloudstack-client/internal/constants"
	"github.com/cloudrift-io/cloudstack-client/internal/engine"
	"github.com/cloudrift-io/cloudstack-client/internal/params"
	"github.com/cloudrift-io/cloudstack-client/internal/trace"
	"github.com/cloudrift-io/cloudstack-client/internal/transport"
	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// New creates a CloudStack API client from the given configuration.
func New(config *cloudstack.Config) (cloudstack.Client, error) {
	if config == nil {
		return nil, cloudstack.ErrConfigRequired
	}

	if config.Endpoint == "" {
		return nil, cloudstack.ErrEndpointRequired
	}

	if config.APIKey == "" {
		return nil, cloudstack.ErrAPIKeyRequired
	}

	if config.Secret == "" {
		return nil, cloudstack.ErrSecretRequired
	}

	method := strings.ToLower(config.Method)
	if method == "" {
		method = "get"
	}

	if method != "get" && method != "post" {
		return nil, cloudstack.ErrInvalidMethod
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		built, err := buildHTTPClient(config)
		if err != nil {
			return nil, err
		}

		httpClient = built
	}

	opts := []transport.Option{
		transport.WithMethod(method),
		transport.WithHTTPClient(httpClient),
		transport.WithRetry(config.Retry,
			constants.DefaultRetryWaitMin, constants.DefaultRetryWaitMax),
	}

	if len(config.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(config.Headers))
	}

	if config.UserAgent != "" {
		opts = append(opts, transport.WithUserAgent(config.UserAgent))
	}

	if config.Logger != nil {
		opts = append(opts,
			transport.WithLogger(config.Logger),
			transport.WithDebug(config.Debug))
	}

	if config.Trace {
		recorder := config.TraceRecorder
		if recorder == nil {
			recorder = trace.NewWriter(os.Stderr)
		}

		opts = append(opts, transport.WithTraceRecorder(recorder))
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = constants.DefaultTimeout
	}

	pollInterval := config.PollInterval
	if pollInterval == 0 {
		pollInterval = constants.DefaultPollInterval
	}

	expiration := config.Expiration
	if expiration == 0 {
		expiration = constants.DefaultExpiration
	}

	return engine.New(engine.Options{
		Transport:    transport.NewClient(config.Endpoint, opts...),
		Signer:       params.NewSigner(config.Secret),
		APIKey:       config.APIKey,
		Timeout:      timeout,
		PollInterval: pollInterval,
		JobTimeout:   config.JobTimeout,
		Expiration:   expiration,
		FetchResult:  config.FetchResult,
		Logger:       config.Logger,
	}), nil
}

// buildHTTPClient assembles a pooled HTTP client from the TLS settings.
func buildHTTPClient(config *cloudstack.Config) (*http.Client, error) {
	pooled := cleanhttp.DefaultPooledTransport()

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	configured := false

	if config.SkipTLSVerify {
		tlsConfig.InsecureSkipVerify = true
		configured = true
	}

	if config.CABundle != "" {
		pem, err := os.ReadFile(config.CABundle)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle %s: %w", config.CABundle, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA bundle %s", config.CABundle)
		}

		tlsConfig.RootCAs = pool
		configured = true
	}

	if config.ClientCert != "" {
		key := config.ClientKey
		if key == "" {
			key = config.ClientCert
		}

		cert, err := tls.LoadX509KeyPair(config.ClientCert, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
		configured = true
	}

	if configured {
		pooled.TLSClientConfig = tlsConfig
	}

	return &http.Client{Transport: pooled}, nil
}
