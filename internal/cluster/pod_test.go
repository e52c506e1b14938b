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

package cluster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/thc1006/workload-launcher/pkg/workload"
)

func testRequest() PodRequest {
	key := "conn-123"
	return PodRequest{
		Message: workload.Message{
			WorkloadID:   "w1",
			WorkloadType: workload.TypeSync,
			MutexKey:     &key,
			Labels: []workload.Label{
				{Key: "team", Value: "data"},
				{Key: "source", Value: "has spaces"},
				{Key: "bad key!", Value: "x"},
			},
			LogPath: "/logs/w1",
			AutoID:  "auto-1",
		},
		Input: &workload.LaunchInput{
			Image:        "connector/source:1.0",
			Command:      []string{"/entrypoint"},
			Args:         []string{"read"},
			ConnectionID: "conn-123",
			JobID:        "42",
			AttemptID:    3,
			Resources: workload.Resources{
				CPURequest:    "250m",
				CPULimit:      "1",
				MemoryRequest: "256Mi",
				MemoryLimit:   "1Gi",
			},
			Env:        []workload.EnvVar{{Name: "MODE", Value: "full"}},
			SecretRefs: []workload.SecretRef{{EnvName: "TOKEN", SecretName: "conn-secret", Key: "token"}},
			Labels:     map[string]string{"tier": "batch"},
			Annotations: map[string]string{
				"example.com/owner": "ops",
			},
			NodeSelector: map[string]string{"pool": "jobs"},
		},
		Tags: workload.Tags{
			WorkloadType:  workload.TypeSync,
			WorkloadID:    "w1",
			DataplaneID:   "dp-1",
			DataplaneName: "east",
		},
		CorrelationID: "corr-1",
	}
}

func TestPodName(t *testing.T) {
	assert.Equal(t, "sync-w1", PodName(workload.TypeSync, "w1"))
	assert.Equal(t, "check-abc-123", PodName(workload.TypeCheck, "abc-123"))

	upper := PodName(workload.TypeSync, "W1")
	assert.NotEqual(t, "sync-w1", upper)
	assert.True(t, strings.HasPrefix(upper, "sync-w1-"))
	assert.Empty(t, validation.IsDNS1123Label(upper))

	long := strings.Repeat("x", 100)
	name := PodName(workload.TypeDiscover, long)
	assert.LessOrEqual(t, len(name), validation.DNS1123LabelMaxLength)
	assert.Empty(t, validation.IsDNS1123Label(name))
	assert.NotEqual(t, name, PodName(workload.TypeDiscover, long+"y"))

	weird := PodName(workload.TypeSpec, "a_b/c")
	assert.Empty(t, validation.IsDNS1123Label(weird))
}

func TestBuildPod(t *testing.T) {
	pod, dropped, err := BuildPod(testRequest(), PodOptions{
		Namespace:        "jobs",
		ServiceAccount:   "launcher",
		ImagePullPolicy:  corev1.PullAlways,
		ImagePullSecrets: []string{"registry"},
	})
	require.NoError(t, err)

	assert.Equal(t, "sync-w1", pod.Name)
	assert.Equal(t, "jobs", pod.Namespace)
	assert.Equal(t, []string{"bad key!"}, dropped)

	assert.Equal(t, ManagedByValue, pod.Labels[LabelManagedBy])
	assert.Equal(t, "w1", pod.Labels[LabelWorkloadID])
	assert.Equal(t, "sync", pod.Labels[LabelWorkloadType])
	assert.Equal(t, "dp-1", pod.Labels[LabelDataplaneID])
	assert.Equal(t, "data", pod.Labels["team"])
	assert.Equal(t, "batch", pod.Labels["tier"])
	assert.NotContains(t, pod.Labels, "source")

	assert.Equal(t, "has spaces", pod.Annotations["source"])
	assert.Equal(t, "ops", pod.Annotations["example.com/owner"])
	assert.Equal(t, "auto-1", pod.Annotations[AnnotationAutoID])
	assert.Equal(t, "/logs/w1", pod.Annotations[AnnotationLogPath])
	assert.Equal(t, "conn-123", pod.Annotations[AnnotationMutexKey])
	assert.Equal(t, "corr-1", pod.Annotations[AnnotationCorrelationID])

	spec := pod.Spec
	assert.Equal(t, corev1.RestartPolicyNever, spec.RestartPolicy)
	assert.Equal(t, "launcher", spec.ServiceAccountName)
	assert.Equal(t, []corev1.LocalObjectReference{{Name: "registry"}}, spec.ImagePullSecrets)
	assert.Equal(t, map[string]string{"pool": "jobs"}, spec.NodeSelector)

	require.Len(t, spec.Containers, 1)
	c := spec.Containers[0]
	assert.Equal(t, "connector/source:1.0", c.Image)
	assert.Equal(t, corev1.PullAlways, c.ImagePullPolicy)
	assert.Equal(t, []string{"/entrypoint"}, c.Command)
	assert.Equal(t, []string{"read"}, c.Args)

	assert.True(t, c.Resources.Requests.Cpu().Equal(resource.MustParse("250m")))
	assert.True(t, c.Resources.Limits.Memory().Equal(resource.MustParse("1Gi")))
	assert.NotContains(t, c.Resources.Requests, corev1.ResourceEphemeralStorage)

	env := map[string]corev1.EnvVar{}
	var order []string
	for _, e := range c.Env {
		env[e.Name] = e
		order = append(order, e.Name)
	}
	assert.Equal(t, "MODE", order[0])
	assert.Equal(t, "w1", env["WORKLOAD_ID"].Value)
	assert.Equal(t, "SYNC", env["WORKLOAD_TYPE"].Value)
	assert.Equal(t, "dp-1", env["DATAPLANE_ID"].Value)
	assert.Equal(t, "east", env["DATAPLANE_NAME"].Value)
	assert.Equal(t, "/logs/w1", env["LOG_PATH"].Value)
	assert.Equal(t, "42", env["JOB_ID"].Value)
	assert.Equal(t, "3", env["ATTEMPT_ID"].Value)
	require.NotNil(t, env["TOKEN"].ValueFrom)
	assert.Equal(t, "conn-secret", env["TOKEN"].ValueFrom.SecretKeyRef.Name)
	assert.Equal(t, "token", env["TOKEN"].ValueFrom.SecretKeyRef.Key)
}

func TestBuildPodInputServiceAccountOverrides(t *testing.T) {
	req := testRequest()
	req.Input.ServiceAccount = "custom"
	pod, _, err := BuildPod(req, PodOptions{ServiceAccount: "launcher"})
	require.NoError(t, err)
	assert.Equal(t, "custom", pod.Spec.ServiceAccountName)
}

func TestBuildPodWorkloadIDNotLabelSafe(t *testing.T) {
	req := testRequest()
	req.Message.WorkloadID = "id with spaces"
	pod, _, err := BuildPod(req, PodOptions{})
	require.NoError(t, err)
	assert.NotContains(t, pod.Labels, LabelWorkloadID)
	assert.Equal(t, "id with spaces", pod.Annotations[AnnotationWorkloadID])
}

func TestBuildPodReservedLabelsWin(t *testing.T) {
	req := testRequest()
	req.Tags.DataplaneID = "dp-1"
	req.Message.Labels = append(req.Message.Labels,
		workload.Label{Key: LabelManagedBy, Value: "someone-else"},
		workload.Label{Key: LabelWorkloadType, Value: "check"},
	)
	req.Input.Labels = map[string]string{
		LabelWorkloadID:  "w2",
		LabelDataplaneID: "dp-9",
	}

	pod, dropped, err := BuildPod(req, PodOptions{Namespace: "jobs"})
	require.NoError(t, err)
	assert.Equal(t, ManagedByValue, pod.Labels[LabelManagedBy])
	assert.Equal(t, "sync", pod.Labels[LabelWorkloadType])
	assert.Equal(t, "w1", pod.Labels[LabelWorkloadID])
	assert.Equal(t, "dp-1", pod.Labels[LabelDataplaneID])
	assert.Subset(t, dropped, []string{LabelManagedBy, LabelWorkloadType, LabelWorkloadID, LabelDataplaneID})
}

func TestBuildPodRejectsBadQuantity(t *testing.T) {
	req := testRequest()
	req.Input.Resources.CPULimit = "lots"
	_, _, err := BuildPod(req, PodOptions{})
	assert.Error(t, err)
}

func TestBuildPodRequiresInput(t *testing.T) {
	req := testRequest()
	req.Input = nil
	_, _, err := BuildPod(req, PodOptions{})
	assert.Error(t, err)
}
