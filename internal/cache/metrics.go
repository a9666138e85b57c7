package cache

import (
	"context"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/opentelemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"time"
)

type metrics struct {
	lookupCounter metric.Int64Counter
	loadCounter   metric.Int64Counter
	loadDuration  metric.Float64Histogram
}

func newMetrics(cache *Cache) (*metrics, error) {
	var metrics metrics
	var err error

	metrics.lookupCounter, err = opentelemetry.DefaultMeter.Int64Counter(
		"org.cirruslabs.tensorcraft.cache.lookups.total",
		metric.WithDescription("Number of model lookups, partitioned by whether the model was already cached"),
	)
	if err != nil {
		return nil, err
	}

	metrics.loadCounter, err = opentelemetry.DefaultMeter.Int64Counter(
		"org.cirruslabs.tensorcraft.cache.loads.total",
		metric.WithDescription("Number of model loads, partitioned by outcome"),
	)
	if err != nil {
		return nil, err
	}

	metrics.loadDuration, err = opentelemetry.DefaultMeter.Float64Histogram(
		"org.cirruslabs.tensorcraft.cache.load.duration",
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = opentelemetry.DefaultMeter.Int64ObservableGauge(
		"org.cirruslabs.tensorcraft.cache.models",
		metric.WithDescription("Number of models that are loaded or being loaded"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			status := cache.Status()

			observer.Observe(int64(status.Ready), metric.WithAttributes(attribute.String("state", "ready")))
			observer.Observe(int64(status.Loading), metric.WithAttributes(attribute.String("state", "loading")))

			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return &metrics, nil
}

func (metrics *metrics) lookup(hit bool) {
	metrics.lookupCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Bool("hit", hit),
	))
}

func (metrics *metrics) load(started time.Time, err error) {
	outcome := "success"

	if err != nil {
		outcome = "failure"

		if kind := model.KindOf(err); kind != nil {
			outcome = kind.Error()
		}
	}

	attributes := metric.WithAttributes(attribute.String("outcome", outcome))

	metrics.loadCounter.Add(context.Background(), 1, attributes)
	metrics.loadDuration.Record(context.Background(), time.Since(started).Seconds(), attributes)
}
