// Package observability emits request telemetry to CloudWatch. Metrics are
// best-effort: a publish failure is logged and never affects the request
// path.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"hrdpswx/internal/core"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// publishTimeout bounds a single PutMetricData call. Publishes happen off
// the request goroutine, so this only limits background work.
const publishTimeout = 2 * time.Second

// Metrics emitted:
//   - RequestCount: Dims {Method, Endpoint, Status} -- on every request
//   - RequestLatency: Dims {Method, Endpoint} -- wall-clock per request
//
// Compile-time assertion that CloudWatchMetrics implements core.MetricsCollector.
var _ core.MetricsCollector = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes request metrics to a CloudWatch namespace.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a collector over an existing CloudWatch client.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// NewCloudWatchMetricsFromRegion resolves AWS credentials from the default
// chain and builds a collector for the given region and namespace.
func NewCloudWatchMetricsFromRegion(ctx context.Context, region, namespace string, logger *slog.Logger) (*CloudWatchMetrics, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), namespace, logger), nil
}

// RecordRequest publishes count and latency for one handled request. The
// publish runs on its own goroutine so the middleware never blocks on AWS.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("RequestCount"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Method"), Value: aws.String(method)},
					{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
					{Name: aws.String("Status"), Value: aws.String(status)},
				},
			},
			{
				MetricName: aws.String("RequestLatency"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Method"), Value: aws.String(method)},
					{Name: aws.String("Endpoint"), Value: aws.String(endpoint)},
				},
			},
		},
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if _, err := m.client.PutMetricData(ctx, input); err != nil {
			m.logger.Error("failed to publish request metrics",
				slog.String("error", err.Error()),
				slog.String("endpoint", endpoint),
				slog.String("status", status),
			)
		}
	}()
}
