// Package awsutil provides utilities for loading AWS configuration and clients.
package awsutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Clients bundles the SDK clients the portal talks to.
type Clients struct {
	DynamoDB *dynamodb.Client
	S3       *s3.Client
	Presign  *s3.PresignClient
}

// Load loads the default AWS configuration for region.
func Load(ctx context.Context, region string) (aws.Config, error) {
	return awsCfg.LoadDefaultConfig(ctx, awsCfg.WithRegion(region))
}

// NewClients builds the DynamoDB and S3 clients, pointing them at endpoint
// (e.g. http://localstack:4566) when it is set.
func NewClients(cfg aws.Config, endpoint string) Clients {
	ddb := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	s3c := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // localstack/dev friendliness
		}
	})
	return Clients{DynamoDB: ddb, S3: s3c, Presign: s3.NewPresignClient(s3c)}
}
