package providers

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/tarkyaio/tarka/pkg/models"
)

// maxCloudTrailLookback bounds how far back LookupEvents will ever be
// asked to search, independent of the configured lookback: CloudTrail's
// default event history only retains 90 days.
const maxCloudTrailLookback = 90 * 24 * time.Hour

// AWSClient implements AWSProvider over EC2 (DescribeInstances,
// DescribeInstanceStatus) and CloudTrail (LookupEvents), paginated with a
// bounded lookback.
type AWSClient struct {
	cloudtrail *cloudtrail.Client
	ec2        *ec2.Client
	maxEvents  int32
}

// NewAWSClient loads the default AWS credential chain (env vars, shared
// config, EC2/ECS instance role) via aws-sdk-go-v2/config.
func NewAWSClient(ctx context.Context, maxEvents int) (*AWSClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &AWSClient{
		cloudtrail: cloudtrail.NewFromConfig(cfg),
		ec2:        ec2.NewFromConfig(cfg),
		maxEvents:  int32(maxEvents),
	}, nil
}

// FetchEvidence looks up CloudTrail events naming the identity's resource
// and the instance state when the identity resolves to an EC2 instance.
func (c *AWSClient) FetchEvidence(ctx context.Context, identity models.Identity, lookback time.Duration) models.AWSSlot {
	if identity.Status != models.IdentityOK {
		return models.AWSSlot{Status: models.SlotUnavailable, Reason: "identity not resolved"}
	}
	if lookback > maxCloudTrailLookback {
		lookback = maxCloudTrailLookback
	}

	now := time.Now()
	input := &cloudtrail.LookupEventsInput{
		StartTime: aws.Time(now.Add(-lookback)),
		EndTime:   aws.Time(now),
		LookupAttributes: []types.LookupAttribute{
			{AttributeKey: types.LookupAttributeKeyResourceName, AttributeValue: aws.String(identity.Name)},
		},
	}

	var events []models.AWSEvent
	paginator := cloudtrail.NewLookupEventsPaginator(c.cloudtrail, input)
	for paginator.HasMorePages() && int32(len(events)) < c.maxEvents {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return models.AWSSlot{Status: models.SlotUnavailable, Reason: err.Error()}
		}
		for _, e := range page.Events {
			ev := models.AWSEvent{EventName: aws.ToString(e.EventName)}
			if e.EventTime != nil {
				ev.EventTime = *e.EventTime
			}
			ev.Username = aws.ToString(e.Username)
			events = append(events, ev)
			if int32(len(events)) >= c.maxEvents {
				break
			}
		}
	}

	resourceState := c.describeInstanceState(ctx, identity.Name)

	if len(events) == 0 && resourceState == "" {
		return models.AWSSlot{Status: models.SlotEmpty, FetchedAt: now}
	}
	return models.AWSSlot{Status: models.SlotOK, Events: events, ResourceState: resourceState, FetchedAt: now}
}

// describeInstanceState best-effort resolves an EC2 instance's current
// state; an empty string (rather than an error) means the name did not
// resolve to an EC2 instance, which is the common case for non-EC2 AWS
// identities.
func (c *AWSClient) describeInstanceState(ctx context.Context, instanceID string) string {
	out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil || len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return ""
	}
	inst := out.Reservations[0].Instances[0]
	if inst.State == nil {
		return ""
	}
	return string(inst.State.Name)
}
