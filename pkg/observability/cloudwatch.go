package observability

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/domain/events"
)

// CloudWatchAPI is the subset of the CloudWatch client the reporter uses
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchReporter turns published domain events into CloudWatch business
// metrics. It satisfies ports.EventBus so it can sit next to the real bus.
type CloudWatchReporter struct {
	client      CloudWatchAPI
	namespace   string
	environment string
	logger      *zap.Logger
}

// NewCloudWatchReporter creates a reporter writing into namespace
func NewCloudWatchReporter(client CloudWatchAPI, namespace, environment string, logger *zap.Logger) *CloudWatchReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudWatchReporter{
		client:      client,
		namespace:   namespace,
		environment: environment,
		logger:      logger,
	}
}

// Publish counts events by type and sends one datum per type
func (r *CloudWatchReporter) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	if len(evts) == 0 {
		return nil
	}

	counts := map[string]float64{}
	for _, e := range evts {
		counts[e.GetEventType()]++
	}
	names := make([]string, 0, len(counts))
	for t := range counts {
		names = append(names, t)
	}
	sort.Strings(names)

	data := make([]cwtypes.MetricDatum, 0, len(names))
	for _, t := range names {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(t),
			Value:      aws.Float64(counts[t]),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String("Environment"), Value: aws.String(r.environment)},
			},
		})
	}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("failed to put metric data: %w", err)
	}
	r.logger.Debug("Reported event metrics", zap.Int("metrics", len(data)))
	return nil
}
