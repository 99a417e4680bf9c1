// Package telemetry emits operational metrics to CloudWatch. Metrics are
// best effort: a publish failure is logged and never propagates into the
// request path.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names published by the service.
const (
	MetricAPILatency      = "APILatency"
	MetricAPIRequestCount = "APIRequestCount"
	MetricCycleSweepReset = "CycleSweepResets"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Collector publishes request and job metrics to a CloudWatch namespace.
type Collector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCollector creates a Collector publishing to the given namespace.
func NewCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRequest emits latency and count metrics for one API request, with
// Method, Endpoint, and Status dimensions.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String("Method"), Value: aws.String(method)},
		{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
		{Name: aws.String("Status"), Value: aws.String(status)},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(MetricAPIRequestCount),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	}

	// Publish outside the request's lifecycle so a slow CloudWatch endpoint
	// never adds latency to the response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := c.client.PutMetricData(ctx, input); err != nil {
			c.logger.Warn("failed to publish request metrics",
				"error", err,
				"endpoint", endpoint,
			)
		}
	}()
}

// RecordSweep emits the number of entitlements reset by one cycle sweep.
func (c *Collector) RecordSweep(ctx context.Context, resets int) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricCycleSweepReset),
				Value:      aws.Float64(float64(resets)),
				Unit:       cwtypes.StandardUnitCount,
			},
		},
	}

	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.Warn("failed to publish sweep metrics", "error", err)
	}
}
