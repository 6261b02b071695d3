// Package main serves the portal API as a Lambda behind an API Gateway HTTP API.
package main

import (
	"context"

	"github.com/kylejryan/ucehub-portal/internal/app"
	"github.com/kylejryan/ucehub-portal/internal/config"
	"github.com/kylejryan/ucehub-portal/internal/httpx"
	"github.com/kylejryan/ucehub-portal/internal/logging"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

// main initializes the app and starts the Lambda handler.
func main() {
	env := config.MustLoad()
	log, err := logging.New(env.LogLevel, env.AppEnv)
	if err != nil {
		panic(err)
	}

	// No goroutine may outlive an invocation, so notifications go inline.
	a, err := app.New(context.Background(), env, log, app.Inline)
	if err != nil {
		log.Fatal("init", zap.Error(err))
	}
	lambda.Start(httpx.LambdaHandler(a.Router))
}
