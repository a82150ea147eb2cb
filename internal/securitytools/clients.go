package securitytools

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/guardduty"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/securityhub"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// GuardDutyAPI is the subset of the GuardDuty client the tools call.
type GuardDutyAPI interface {
	ListDetectors(ctx context.Context, params *guardduty.ListDetectorsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListDetectorsOutput, error)
	ListFindings(ctx context.Context, params *guardduty.ListFindingsInput, optFns ...func(*guardduty.Options)) (*guardduty.ListFindingsOutput, error)
	GetFindings(ctx context.Context, params *guardduty.GetFindingsInput, optFns ...func(*guardduty.Options)) (*guardduty.GetFindingsOutput, error)
}

// SecurityHubAPI is the subset of the Security Hub client the tools call.
type SecurityHubAPI interface {
	GetEnabledStandards(ctx context.Context, params *securityhub.GetEnabledStandardsInput, optFns ...func(*securityhub.Options)) (*securityhub.GetEnabledStandardsOutput, error)
	GetFindings(ctx context.Context, params *securityhub.GetFindingsInput, optFns ...func(*securityhub.Options)) (*securityhub.GetFindingsOutput, error)
}

// S3API is the subset of the S3 client the tools call.
type S3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketEncryption(ctx context.Context, params *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
}

// EC2API is the subset of the EC2 client the tools call.
type EC2API interface {
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
}

// STSAPI is the subset of the STS client the tools call.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Clients bundles the service clients for one region and profile.
type Clients struct {
	GuardDuty   GuardDutyAPI
	SecurityHub SecurityHubAPI
	S3          S3API
	EC2         EC2API
	STS         STSAPI
}

// ClientFactory hands out service clients for a region and named profile.
type ClientFactory interface {
	Clients(ctx context.Context, region, profile string) (*Clients, error)
}

// AWSClientFactory builds SDK clients from the default credential chain and
// caches them per region and profile. The SDK's standard retryer handles
// throttling and transient errors.
type AWSClientFactory struct {
	mu    sync.Mutex
	cache map[string]*Clients
}

func NewAWSClientFactory() *AWSClientFactory {
	return &AWSClientFactory{cache: make(map[string]*Clients)}
}

func (f *AWSClientFactory) Clients(ctx context.Context, region, profile string) (*Clients, error) {
	key := region + "|" + profile
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cache[key]; ok {
		return c, nil
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithRetryMode(aws.RetryModeStandard),
		config.WithRetryMaxAttempts(3),
	}
	if profile != "" && profile != "default" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for %s/%s: %w", region, profile, err)
	}
	c := &Clients{
		GuardDuty:   guardduty.NewFromConfig(cfg),
		SecurityHub: securityhub.NewFromConfig(cfg),
		S3:          s3.NewFromConfig(cfg),
		EC2:         ec2.NewFromConfig(cfg),
		STS:         sts.NewFromConfig(cfg),
	}
	f.cache[key] = c
	return c, nil
}
