// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// ReleaseStatus is the release aggregate's lifecycle state. The legal
// transitions are draft → pending → released → archived, strictly
// forward.
type ReleaseStatus string

const (
	ReleaseDraft    ReleaseStatus = "draft"
	ReleasePending  ReleaseStatus = "pending"
	ReleaseReleased ReleaseStatus = "released"
	ReleaseArchived ReleaseStatus = "archived"
)

// next returns the only legal successor status, or "" for archived.
func (s ReleaseStatus) next() ReleaseStatus {
	switch s {
	case ReleaseDraft:
		return ReleasePending
	case ReleasePending:
		return ReleaseReleased
	case ReleaseReleased:
		return ReleaseArchived
	}
	return ""
}

// CanAdvanceTo reports whether target is the legal next status.
func (s ReleaseStatus) CanAdvanceTo(target ReleaseStatus) bool {
	return s.next() == target && target != ""
}

// Release binds a version to its per-environment deployments and a
// changelog. Releases have their own lifecycle and are not owned by
// any single run.
type Release struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Tag     string `json:"tag,omitempty"`
	Commit  string `json:"commit,omitempty"`

	Deployments []ReleaseDeployment `json:"deployments,omitempty"`
	Changelog   string              `json:"changelog,omitempty"`

	Status    ReleaseStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ReleaseDeployment references one environment's deployment of the
// release.
type ReleaseDeployment struct {
	Environment  string `json:"environment"`
	DeploymentID string `json:"deployment_id"`
}
