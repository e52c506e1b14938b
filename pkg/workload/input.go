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

package workload

// LaunchInput is the hydrated, validated form of Message.InputPayload that
// the launch stage turns into a pod.
type LaunchInput struct {
	Image          string            `json:"image"`
	Command        []string          `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	ConnectionID   string            `json:"connectionId,omitempty"`
	ActorID        string            `json:"actorId,omitempty"`
	JobID          string            `json:"jobId,omitempty"`
	AttemptID      int               `json:"attemptId,omitempty"`
	Resources      Resources         `json:"resources,omitempty"`
	Env            []EnvVar          `json:"env,omitempty"`
	SecretRefs     []SecretRef       `json:"secretRefs,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	Annotations    map[string]string `json:"annotations,omitempty"`
	NodeSelector   map[string]string `json:"nodeSelector,omitempty"`
	ServiceAccount string            `json:"serviceAccount,omitempty"`
}

// Resources holds Kubernetes quantity strings. Empty means unset.
type Resources struct {
	CPURequest              string `json:"cpuRequest,omitempty"`
	CPULimit                string `json:"cpuLimit,omitempty"`
	MemoryRequest           string `json:"memoryRequest,omitempty"`
	MemoryLimit             string `json:"memoryLimit,omitempty"`
	EphemeralStorageRequest string `json:"ephemeralStorageRequest,omitempty"`
	EphemeralStorageLimit   string `json:"ephemeralStorageLimit,omitempty"`
}

// EnvVar is a plain environment variable injected into the container.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SecretRef injects one key of a cluster secret as an environment variable.
type SecretRef struct {
	EnvName    string `json:"envName"`
	SecretName string `json:"secretName"`
	Key        string `json:"key"`
}
