// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"

	"github.com/conveyor-foundation/conveyor/lib/engine"
	"github.com/conveyor-foundation/conveyor/lib/service"
)

// runnerClient forwards job dispatches to an external runner's Unix
// socket. The runner accepts the "execute" action, starts the job,
// and reports step results back on the daemon's control socket.
type runnerClient struct {
	client *service.Client
}

func newRunnerClient(socketPath string) *runnerClient {
	return &runnerClient{client: service.NewClient(socketPath)}
}

func (r *runnerClient) Dispatch(ctx context.Context, dispatch engine.JobDispatch) error {
	return r.client.Call(ctx, "execute", map[string]any{"dispatch": dispatch}, nil)
}

// passiveInvoker accepts every dispatch without forwarding it. Jobs
// stay running until an external runner, polling run state through
// the control socket, reports their results. Used when no runner
// socket is configured.
type passiveInvoker struct {
	logger *slog.Logger
}

func (p *passiveInvoker) Dispatch(_ context.Context, dispatch engine.JobDispatch) error {
	p.logger.Info("job dispatched",
		"run_id", dispatch.RunID,
		"stage", dispatch.StageName,
		"job_run_id", dispatch.Job.ID,
	)
	return nil
}
