// Package ports declares the narrow interfaces this core consumes but
// does not implement: the filter/endpoint runtime, the load balancer,
// the HTTP codec, and the metrics backend. All four are explicitly out
// of scope as implementations; only the boundary this core calls
// through is defined here.
package ports

import (
	"context"

	"github.com/thushan/edgeproxy/internal/core/domain"
)

// FilterPipeline is the downstream collaborator that consumes a
// RequestMessage and produces a ResponseMessage. The Start/Complete
// lifecycle around each call is driven by inbound.ClientRequestReceiver,
// not by the pipeline.
type FilterPipeline interface {
	// HandleRequest is invoked once the inbound receiver has finished
	// constructing a RequestMessage (and, for a buffered request, its
	// body). Implementations own everything downstream: routing,
	// retries, circuit breaking.
	HandleRequest(ctx context.Context, req *domain.RequestMessage) (*domain.ResponseMessage, error)
}

// LoadBalancer supplies a Server instance and its ServerStats gauges for
// an origin name.
type LoadBalancer interface {
	Select(ctx context.Context, originName string) (domain.Server, *domain.ServerStats, error)
}

// Codec is the upstream collaborator that frames bytes on the wire.
// This core does not implement HTTP parsing; net/http already performs
// the framing on the inbound side, and the outbound side writes raw
// bytes the pool's ConnectionFactory pipeline assembles.
type Codec interface {
	Encode(req *domain.RequestMessage) ([]byte, error)
	Decode(b []byte) (*domain.ResponseMessage, error)
}

// MetricsSink is the minimal counter/gauge interface assumed for an
// external metrics backend.
type MetricsSink interface {
	IncrCounter(name string, tags map[string]string)
	SetGauge(name string, value float64, tags map[string]string)
}
