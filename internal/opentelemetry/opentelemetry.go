package opentelemetry

import (
	"go.opentelemetry.io/otel"
)

const meterName = "org.cirruslabs.tensorcraft"

// DefaultMeter resolves against the global meter provider, which
// is a no-op unless the embedding program installs an SDK.
var DefaultMeter = otel.Meter(meterName)
