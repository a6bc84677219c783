// Package trace implements the recorders behind the diagnostic side channel.
// Every wire exchange, pagination pages and job polls included, is emitted as
// a pair of request/response events. Recorders must never fail a request.
package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// Writer streams trace events to an io.Writer in a line-oriented format:
// method and URL (or status code) first, then one header per line, then the
// body. Events from concurrent calls are serialized by a mutex so lines
// never interleave.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter returns a recorder that writes to out, typically stderr.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Record implements cloudstack.TraceRecorder.
func (w *Writer) Record(event cloudstack.TraceEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch event.Kind {
	case cloudstack.TraceRequest:
		fmt.Fprintf(w.out, "%s %s\n", event.Method, event.URL)
	case cloudstack.TraceResponse:
		fmt.Fprintf(w.out, "%d\n", event.Status)
	}

	names := make([]string, 0, len(event.Headers))
	for name := range event.Headers {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		for _, value := range event.Headers[name] {
			fmt.Fprintf(w.out, "%s: %s\n", name, value)
		}
	}

	fmt.Fprintf(w.out, "%s\n\n", event.Body)
}

// NATSRecorder publishes trace events as JSON messages on a NATS subject,
// letting an operator tail the wire traffic of a fleet of clients. Publish
// and marshal errors are dropped.
type NATSRecorder struct {
	conn    *nats.Conn
	subject string
}

// NewNATSRecorder connects to the given NATS URL and publishes on subject.
func NewNATSRecorder(url, subject string) (*NATSRecorder, error) {
	conn, err := nats.Connect(url, nats.Name("cloudstack-client-trace"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &NATSRecorder{conn: conn, subject: subject}, nil
}

// Record implements cloudstack.TraceRecorder.
func (r *NATSRecorder) Record(event cloudstack.TraceEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	_ = r.conn.Publish(r.subject, payload)
}

// Close flushes pending messages and closes the connection.
func (r *NATSRecorder) Close() error {
	if err := r.conn.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	return nil
}
