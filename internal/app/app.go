// Package app wires configuration, AWS clients and the workflow into the
// pieces each entrypoint runs.
package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/kylejryan/ucehub-portal/internal/api"
	"github.com/kylejryan/ucehub-portal/internal/awsutil"
	"github.com/kylejryan/ucehub-portal/internal/cache"
	"github.com/kylejryan/ucehub-portal/internal/config"
	"github.com/kylejryan/ucehub-portal/internal/ddb"
	"github.com/kylejryan/ucehub-portal/internal/notify"
	"github.com/kylejryan/ucehub-portal/internal/s3io"
	"github.com/kylejryan/ucehub-portal/internal/submission"

	"go.uber.org/zap"
)

// Dispatch selects how notifications leave the process.
type Dispatch int

const (
	// Queued hands cards to a background worker. Use it in long-lived servers.
	Queued Dispatch = iota
	// Inline sends within the request, for runtimes that freeze between
	// invocations.
	Inline
)

// App holds the application state, including configuration and AWS clients.
type App struct {
	Env     config.Env
	Log     *zap.Logger
	Repo    *ddb.Repo
	Blobs   *s3io.Store
	Service *submission.Service
	Router  http.Handler

	closers []func(context.Context) error
}

// New connects to AWS and, when configured, Redis, and builds the workflow
// and router on top of them.
func New(ctx context.Context, env config.Env, log *zap.Logger, d Dispatch) (*App, error) {
	cfg, err := awsutil.Load(ctx, env.Region)
	if err != nil {
		return nil, err
	}
	clients := awsutil.NewClients(cfg, env.EndpointURL)

	a := &App{
		Env:   env,
		Log:   log,
		Repo:  &ddb.Repo{DB: clients.DynamoDB, Tables: env.Tables},
		Blobs: &s3io.Store{Objects: clients.S3, Presign: clients.Presign, Bucket: env.Bucket},
	}

	var c submission.Cache
	if env.RedisEndpoint != "" {
		rc, err := cache.NewRedis(env.RedisEndpoint, log.Named("cache"))
		if err != nil {
			return nil, err
		}
		c = rc
		a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
	}

	hook := notify.NewWebhook(env.WebhookURL, env.NotifyTimeout, log.Named("notify"))
	var n submission.Notifier
	switch d {
	case Inline:
		n = notify.Inline{Sender: hook, Timeout: env.NotifyTimeout}
	default:
		q := notify.NewQueue(hook, env.NotifyQueue, env.NotifyTimeout, log.Named("notify"))
		n = q
		// The queue drains before Redis closes.
		a.closers = append([]func(context.Context) error{q.Close}, a.closers...)
	}

	a.Service = submission.New(a.Repo, a.Blobs, c, n, log.Named("submission"), submission.OptionsFromEnv(env))
	a.Router = api.NewRouter(api.Deps{Service: a.Service, Log: log.Named("http"), AuthSecret: env.AuthTokenSecret})
	return a, nil
}

// Close drains pending notifications and releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for _, fn := range a.closers {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
