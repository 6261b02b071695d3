// Package main records attachment size and etag after an upload lands in S3.
package main

import (
	"context"

	"github.com/kylejryan/ucehub-portal/internal/awsutil"
	"github.com/kylejryan/ucehub-portal/internal/config"
	"github.com/kylejryan/ucehub-portal/internal/ddb"
	"github.com/kylejryan/ucehub-portal/internal/indexer"
	"github.com/kylejryan/ucehub-portal/internal/logging"
	"github.com/kylejryan/ucehub-portal/internal/s3io"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

// main initializes the indexer and starts the Lambda handler.
func main() {
	env := config.MustLoad()
	log, err := logging.New(env.LogLevel, env.AppEnv)
	if err != nil {
		panic(err)
	}

	cfg, err := awsutil.Load(context.Background(), env.Region)
	if err != nil {
		log.Fatal("aws config", zap.Error(err))
	}
	clients := awsutil.NewClients(cfg, env.EndpointURL)

	ix := &indexer.Indexer{
		Objects: &s3io.Store{Objects: clients.S3, Presign: clients.Presign, Bucket: env.Bucket},
		Records: &ddb.Repo{DB: clients.DynamoDB, Tables: env.Tables},
		Log:     log.Named("indexer"),
	}
	lambda.Start(ix.Handle)
}
