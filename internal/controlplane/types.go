/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package controlplane is the client for the workload registry that owns
// workload and dataplane state.
package controlplane

// WorkloadStatus is the registry's authoritative state of a workload.
type WorkloadStatus string

const (
	StatusPending   WorkloadStatus = "pending"
	StatusClaimed   WorkloadStatus = "claimed"
	StatusLaunched  WorkloadStatus = "launched"
	StatusRunning   WorkloadStatus = "running"
	StatusSuccess   WorkloadStatus = "success"
	StatusFailure   WorkloadStatus = "failure"
	StatusCancelled WorkloadStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s WorkloadStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusCancelled:
		return true
	}
	return false
}

// Workload is the registry view returned by GetWorkload.
type Workload struct {
	ID          string         `json:"id"`
	Status      WorkloadStatus `json:"status"`
	DataplaneID string         `json:"dataplaneId,omitempty"`
	MutexKey    string         `json:"mutexKey,omitempty"`
}

// DataplaneConfig is the identity the registry assigns to this dataplane.
// All fields are comparable so two configs can be compared with ==.
type DataplaneConfig struct {
	DataplaneID        string `json:"dataplaneId"`
	DataplaneName      string `json:"dataplaneName"`
	DataplaneEnabled   bool   `json:"dataplaneEnabled"`
	DataplaneGroupID   string `json:"dataplaneGroupId"`
	DataplaneGroupName string `json:"dataplaneGroupName"`
	OrganizationID     string `json:"organizationId,omitempty"`
}

// ClaimRequest asks for exclusive processing rights over a workload.
type ClaimRequest struct {
	WorkloadID  string  `json:"workloadId"`
	DataplaneID string  `json:"dataplaneId"`
	MutexKey    *string `json:"mutexKey,omitempty"`
}

type claimResponse struct {
	Claimed bool `json:"claimed"`
}

// FailureRequest records a workload as failed in a specific pipeline stage.
type FailureRequest struct {
	WorkloadID string `json:"workloadId"`
	Source     string `json:"source"`
	Reason     string `json:"reason"`
}

type dataplaneRequest struct {
	ClientID string `json:"clientId"`
}
