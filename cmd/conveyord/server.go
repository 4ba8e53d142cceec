// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conveyor-foundation/conveyor/lib/artifact"
	"github.com/conveyor-foundation/conveyor/lib/clock"
	"github.com/conveyor-foundation/conveyor/lib/codec"
	"github.com/conveyor-foundation/conveyor/lib/deploy"
	"github.com/conveyor-foundation/conveyor/lib/engine"
	"github.com/conveyor-foundation/conveyor/lib/logstore"
	"github.com/conveyor-foundation/conveyor/lib/metrics"
	"github.com/conveyor-foundation/conveyor/lib/schema"
	"github.com/conveyor-foundation/conveyor/lib/service"
)

// daemonServer wires the engine and its collaborators to control
// socket actions.
type daemonServer struct {
	engine      *engine.Engine
	tracker     *deploy.Tracker
	definitions *engine.MemoryDefinitionStore
	logs        *logstore.Store
	artifacts   *artifact.Store
	clock       clock.Clock
	startedAt   time.Time
	logger      *slog.Logger
}

func (d *daemonServer) registerActions(server *service.SocketServer) {
	// Liveness and inventory.
	server.Handle("status", d.handleStatus)
	server.Handle("pipelines", d.handlePipelines)

	// Run control.
	server.Handle("trigger", d.handleTrigger)
	server.Handle("event", d.handleEvent)
	server.Handle("cancel", d.handleCancel)
	server.Handle("approve", d.handleApprove)
	server.Handle("reject", d.handleReject)
	server.Handle("show-run", d.handleShowRun)
	server.Handle("list-runs", d.handleListRuns)
	server.Handle("metrics", d.handleMetrics)

	// Deployment control.
	server.Handle("rollback", d.handleRollback)
	server.Handle("health-check", d.handleHealthCheck)
	server.Handle("advance-traffic", d.handleAdvanceTraffic)
	server.Handle("show-deployment", d.handleShowDeployment)
	server.Handle("list-deployments", d.handleListDeployments)

	// Release lifecycle.
	server.Handle("create-release", d.handleCreateRelease)
	server.Handle("attach-deployment", d.handleAttachDeployment)
	server.Handle("advance-release", d.handleAdvanceRelease)
	server.Handle("show-release", d.handleShowRelease)

	// Runner reporting.
	server.Handle("report-step", d.handleReportStep)
	server.Handle("report-job", d.handleReportJob)
	server.Handle("store-log", d.handleStoreLog)
	server.Handle("get-log", d.handleGetLog)
	server.Handle("store-artifact", d.handleStoreArtifact)
}

type statusResponse struct {
	UptimeSeconds float64 `cbor:"uptime_seconds"`
	Pipelines     int     `cbor:"pipelines"`
	ActiveRuns    int     `cbor:"active_runs"`
}

func (d *daemonServer) handleStatus(context.Context, []byte) (any, error) {
	return statusResponse{
		UptimeSeconds: d.clock.Now().Sub(d.startedAt).Seconds(),
		Pipelines:     len(d.definitions.IDs()),
		ActiveRuns:    len(d.engine.ListActiveRuns("")),
	}, nil
}

func (d *daemonServer) handlePipelines(context.Context, []byte) (any, error) {
	return map[string][]string{"pipelines": d.definitions.IDs()}, nil
}

func (d *daemonServer) handleTrigger(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Pipeline string `cbor:"pipeline"`
		Actor    string `cbor:"actor"`
		Ref      string `cbor:"ref"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid trigger request: %w", err)
	}
	if request.Pipeline == "" {
		return nil, fmt.Errorf("missing required field: pipeline")
	}
	return d.engine.TriggerRun(ctx, request.Pipeline, request.Actor, request.Ref)
}

func (d *daemonServer) handleEvent(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Pipeline string       `cbor:"pipeline"`
		Event    schema.Event `cbor:"event"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid event request: %w", err)
	}
	if request.Pipeline == "" {
		return nil, fmt.Errorf("missing required field: pipeline")
	}
	if request.Event.Time.IsZero() {
		request.Event.Time = d.clock.Now()
	}
	return d.engine.HandleEvent(ctx, request.Pipeline, request.Event)
}

func (d *daemonServer) handleCancel(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		RunID string `cbor:"run_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid cancel request: %w", err)
	}
	if err := d.engine.CancelRun(ctx, request.RunID); err != nil {
		return nil, err
	}
	return d.engine.GetRun(ctx, request.RunID)
}

type decisionRequest struct {
	RunID    string `cbor:"run_id"`
	Stage    string `cbor:"stage"`
	Approver string `cbor:"approver"`
	Comment  string `cbor:"comment"`
}

func (d *daemonServer) handleApprove(ctx context.Context, raw []byte) (any, error) {
	var request decisionRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid approve request: %w", err)
	}
	if err := d.engine.ApproveStage(ctx, request.RunID, request.Stage, request.Approver, request.Comment); err != nil {
		return nil, err
	}
	return d.engine.GetRun(ctx, request.RunID)
}

func (d *daemonServer) handleReject(ctx context.Context, raw []byte) (any, error) {
	var request decisionRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid reject request: %w", err)
	}
	if err := d.engine.RejectStage(ctx, request.RunID, request.Stage, request.Approver, request.Comment); err != nil {
		return nil, err
	}
	return d.engine.GetRun(ctx, request.RunID)
}

func (d *daemonServer) handleShowRun(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		RunID string `cbor:"run_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid show-run request: %w", err)
	}
	return d.engine.GetRun(ctx, request.RunID)
}

func (d *daemonServer) handleListRuns(_ context.Context, raw []byte) (any, error) {
	var request struct {
		Pipeline string `cbor:"pipeline"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid list-runs request: %w", err)
	}
	return map[string]any{"runs": d.engine.ListActiveRuns(request.Pipeline)}, nil
}

func (d *daemonServer) handleMetrics(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Pipeline string `cbor:"pipeline"`
		Since    string `cbor:"since"`
		Until    string `cbor:"until"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid metrics request: %w", err)
	}
	if request.Pipeline == "" {
		return nil, fmt.Errorf("missing required field: pipeline")
	}
	since, until, err := parseWindow(request.Since, request.Until, d.clock.Now())
	if err != nil {
		return nil, err
	}
	result, err := d.engine.Metrics(ctx, request.Pipeline, since, until)
	if err != nil {
		return nil, err
	}
	return metricsResponse(result), nil
}

// metricsResponse flattens durations to milliseconds for transport;
// time.Duration has no stable cross-language encoding.
func metricsResponse(m metrics.PipelineMetrics) map[string]any {
	return map[string]any{
		"pipeline_id":        m.PipelineID,
		"since":              m.Since.Format(time.RFC3339),
		"until":              m.Until.Format(time.RFC3339),
		"total_runs":         m.TotalRuns,
		"succeeded":          m.Succeeded,
		"failed":             m.Failed,
		"cancelled":          m.Cancelled,
		"success_rate":       m.SuccessRate,
		"mean_duration_ms":   m.MeanDuration.Milliseconds(),
		"median_duration_ms": m.MedianDuration.Milliseconds(),
		"p95_duration_ms":    m.P95Duration.Milliseconds(),
		"mean_wait_ms":       m.MeanWait.Milliseconds(),
	}
}

// parseWindow resolves the metrics query window. Empty since means
// the last 24 hours; empty until means now.
func parseWindow(since, until string, now time.Time) (time.Time, time.Time, error) {
	sinceTime := now.Add(-24 * time.Hour)
	untilTime := now
	var err error
	if since != "" {
		if sinceTime, err = time.Parse(time.RFC3339, since); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid since %q: %w", since, err)
		}
	}
	if until != "" {
		if untilTime, err = time.Parse(time.RFC3339, until); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid until %q: %w", until, err)
		}
	}
	return sinceTime, untilTime, nil
}

func (d *daemonServer) handleRollback(_ context.Context, raw []byte) (any, error) {
	var request struct {
		DeploymentID string `cbor:"deployment_id"`
		Actor        string `cbor:"actor"`
		Reason       string `cbor:"reason"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid rollback request: %w", err)
	}
	return d.tracker.Rollback(request.DeploymentID, request.Actor, request.Reason)
}

func (d *daemonServer) handleHealthCheck(_ context.Context, raw []byte) (any, error) {
	var request struct {
		DeploymentID string `cbor:"deployment_id"`
		Service      string `cbor:"service"`
		Endpoint     string `cbor:"endpoint"`
		Healthy      bool   `cbor:"healthy"`
		Detail       string `cbor:"detail"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid health-check request: %w", err)
	}
	return d.tracker.RecordHealthCheck(request.DeploymentID, schema.HealthCheck{
		Service:  request.Service,
		Endpoint: request.Endpoint,
		Healthy:  request.Healthy,
		Detail:   request.Detail,
	})
}

func (d *daemonServer) handleAdvanceTraffic(_ context.Context, raw []byte) (any, error) {
	var request struct {
		DeploymentID string `cbor:"deployment_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid advance-traffic request: %w", err)
	}
	return d.tracker.AdvanceTraffic(request.DeploymentID)
}

func (d *daemonServer) handleShowDeployment(_ context.Context, raw []byte) (any, error) {
	var request struct {
		DeploymentID string `cbor:"deployment_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid show-deployment request: %w", err)
	}
	return d.tracker.Get(request.DeploymentID)
}

func (d *daemonServer) handleListDeployments(_ context.Context, raw []byte) (any, error) {
	var request struct {
		RunID string `cbor:"run_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid list-deployments request: %w", err)
	}
	return map[string]any{"deployments": d.tracker.ListForRun(request.RunID)}, nil
}

func (d *daemonServer) handleCreateRelease(_ context.Context, raw []byte) (any, error) {
	var request struct {
		Version   string `cbor:"version"`
		Tag       string `cbor:"tag"`
		Commit    string `cbor:"commit"`
		Changelog string `cbor:"changelog"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid create-release request: %w", err)
	}
	return d.tracker.CreateRelease(request.Version, request.Tag, request.Commit, request.Changelog)
}

func (d *daemonServer) handleAttachDeployment(_ context.Context, raw []byte) (any, error) {
	var request struct {
		ReleaseID    string `cbor:"release_id"`
		DeploymentID string `cbor:"deployment_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid attach-deployment request: %w", err)
	}
	return d.tracker.AttachDeployment(request.ReleaseID, request.DeploymentID)
}

func (d *daemonServer) handleAdvanceRelease(_ context.Context, raw []byte) (any, error) {
	var request struct {
		ReleaseID string `cbor:"release_id"`
		Status    string `cbor:"status"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid advance-release request: %w", err)
	}
	return d.tracker.AdvanceRelease(request.ReleaseID, schema.ReleaseStatus(request.Status))
}

func (d *daemonServer) handleShowRelease(_ context.Context, raw []byte) (any, error) {
	var request struct {
		ReleaseID string `cbor:"release_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid show-release request: %w", err)
	}
	return d.tracker.GetRelease(request.ReleaseID)
}

func (d *daemonServer) handleReportStep(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		StepRunID string `cbor:"step_run_id"`
		Status    string `cbor:"status"`
		ExitCode  int    `cbor:"exit_code"`
		LogRef    string `cbor:"log_ref"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid report-step request: %w", err)
	}
	return nil, d.engine.ReportStepResult(ctx, request.StepRunID, schema.Status(request.Status), request.ExitCode, request.LogRef)
}

func (d *daemonServer) handleReportJob(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		JobRunID string `cbor:"job_run_id"`
		Status   string `cbor:"status"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid report-job request: %w", err)
	}
	return nil, d.engine.ReportJobResult(ctx, request.JobRunID, schema.Status(request.Status))
}

func (d *daemonServer) handleStoreLog(_ context.Context, raw []byte) (any, error) {
	var request struct {
		Ref     string `cbor:"ref"`
		Content []byte `cbor:"content"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid store-log request: %w", err)
	}
	capture, err := d.logs.Create(request.Ref)
	if err != nil {
		return nil, err
	}
	if err := capture.Append(request.Content); err != nil {
		return nil, err
	}
	if err := capture.Close(); err != nil {
		return nil, err
	}
	return map[string]string{"ref": request.Ref}, nil
}

func (d *daemonServer) handleGetLog(_ context.Context, raw []byte) (any, error) {
	var request struct {
		Ref string `cbor:"ref"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid get-log request: %w", err)
	}
	content, err := d.logs.Read(request.Ref)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{"content": content}, nil
}

func (d *daemonServer) handleStoreArtifact(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		RunID   string `cbor:"run_id"`
		Name    string `cbor:"name"`
		Content []byte `cbor:"content"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid store-artifact request: %w", err)
	}
	if request.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}
	record, err := d.artifacts.Write(request.Name, bytes.NewReader(request.Content))
	if err != nil {
		return nil, err
	}
	if request.RunID != "" {
		if err := d.engine.ReportArtifact(ctx, request.RunID, record); err != nil {
			return nil, err
		}
	}
	return record, nil
}
