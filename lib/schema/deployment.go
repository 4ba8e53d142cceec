// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// Strategy is how a deployment rolls out.
type Strategy string

const (
	StrategyRolling   Strategy = "rolling"
	StrategyBlueGreen Strategy = "blue_green"
	StrategyCanary    Strategy = "canary"
	StrategyRecreate  Strategy = "recreate"
	StrategyABTest    Strategy = "a_b"
)

// Valid reports whether s is one of the defined strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRolling, StrategyBlueGreen, StrategyCanary, StrategyRecreate, StrategyABTest:
		return true
	}
	return false
}

// DeploymentStatus is the deployment record's lifecycle state.
// Terminal states are success, failed, and rolled_back.
type DeploymentStatus string

const (
	DeploymentInProgress DeploymentStatus = "in_progress"
	DeploymentSuccess    DeploymentStatus = "success"
	DeploymentFailed     DeploymentStatus = "failed"
	DeploymentRolledBack DeploymentStatus = "rolled_back"
)

// Terminal reports whether the deployment status is final.
func (s DeploymentStatus) Terminal() bool {
	switch s {
	case DeploymentSuccess, DeploymentFailed, DeploymentRolledBack:
		return true
	}
	return false
}

// ServiceHealth is the aggregate health of one deployed service.
type ServiceHealth string

const (
	// ServiceHealthy: every health check for the service is healthy.
	ServiceHealthy ServiceHealth = "healthy"

	// ServiceDegraded: some checks are unhealthy but ready replicas
	// remain.
	ServiceDegraded ServiceHealth = "degraded"

	// ServiceUnhealthy: checks are failing and no replicas are ready.
	ServiceUnhealthy ServiceHealth = "unhealthy"

	// ServiceHealthUnknown: no checks recorded yet.
	ServiceHealthUnknown ServiceHealth = "unknown"
)

// Deployment is one record per deploy-stage execution: what was
// deployed where, with what strategy, and whether it can be rolled
// back.
type Deployment struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	StageRunID string `json:"stage_run_id"`

	Environment string   `json:"environment"`
	Strategy    Strategy `json:"strategy,omitempty"`

	Version         string `json:"version,omitempty"`
	PreviousVersion string `json:"previous_version,omitempty"`

	Services []DeployedService `json:"services,omitempty"`
	Checks   []HealthCheck     `json:"checks,omitempty"`

	Rollback RollbackDescriptor `json:"rollback"`
	Traffic  *TrafficShift      `json:"traffic,omitempty"`

	Status    DeploymentStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// DeployedService is one service within a deployment, with replica
// counts and aggregate health.
type DeployedService struct {
	Name            string        `json:"name"`
	DesiredReplicas int           `json:"desired_replicas,omitempty"`
	ReadyReplicas   int           `json:"ready_replicas,omitempty"`
	Health          ServiceHealth `json:"health"`
}

// HealthCheck is one endpoint probe result. Later checks for the same
// service+endpoint replace earlier ones when recomputing aggregate
// service health.
type HealthCheck struct {
	Service   string    `json:"service"`
	Endpoint  string    `json:"endpoint"`
	Healthy   bool      `json:"healthy"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// RollbackDescriptor records rollback eligibility and, after a
// rollback, who reverted the deployment and why.
type RollbackDescriptor struct {
	// Available is true when a prior version exists to revert to.
	Available bool `json:"available"`

	PriorVersion string `json:"prior_version,omitempty"`

	// Actor, Reason, and Time are stamped by a rollback.
	Actor  string     `json:"actor,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Time   *time.Time `json:"time,omitempty"`
}

// TrafficShift tracks progressive traffic movement for canary and
// a_b strategies.
type TrafficShift struct {
	CurrentPercent   int `json:"current_percent"`
	TargetPercent    int `json:"target_percent"`
	IncrementPercent int `json:"increment_percent,omitempty"`
}
