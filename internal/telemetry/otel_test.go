package telemetry

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/terraconstructs/gatekeeper/internal/config"
)

func TestInit_DisabledWithoutEndpoint(t *testing.T) {
	log, _ := test.NewNullLogger()
	shutdown, err := Init(context.Background(), config.ObservabilityConfig{}, log)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	// Spans are no-ops but remain safe to use.
	_, span := StartSpan(context.Background(), TracerIAM, "noop", attribute.String(AttrProvider, "internal"))
	RecordError(span, assert.AnError)
	span.End()
}

func TestInit_RejectsUnknownProtocol(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := Init(context.Background(), config.ObservabilityConfig{
		OTLPEndpoint: "localhost:4318",
		OTLPProtocol: "grpc",
	}, log)
	assert.ErrorContains(t, err, "not supported")
}
