package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer names, one per service package.
const (
	TracerIAM     = "gatekeeper/services/iam"
	TracerCatalog = "gatekeeper/services/catalog"
)

// Span attribute keys.
const (
	AttrPrincipalID = "principal.id"
	AttrSuperUser   = "principal.super_user"

	AttrRequiredScopes = "authz.required_scopes"
	AttrMissingScope   = "authz.missing_scope"

	AttrProvider       = "identity.provider"
	AttrAccountCreated = "identity.account_created"

	AttrResource           = "catalog.resource"
	AttrRoleID             = "role.id"
	AttrPermissionsAdded   = "role.permissions_added"
	AttrPermissionsRemoved = "role.permissions_removed"
)

// StartSpan starts a span on the named tracer of the global provider.
//
//	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.Resolve")
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError marks span failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// AddEvent records a domain event on span.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
