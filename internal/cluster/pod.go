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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/thc1006/workload-launcher/pkg/workload"
)

const (
	LabelManagedBy    = "app.kubernetes.io/managed-by"
	LabelWorkloadID   = "workload-launcher.io/workload-id"
	LabelWorkloadType = "workload-launcher.io/workload-type"
	LabelDataplaneID  = "workload-launcher.io/dataplane-id"

	AnnotationWorkloadID    = "workload-launcher.io/workload-id"
	AnnotationAutoID        = "workload-launcher.io/auto-id"
	AnnotationLogPath       = "workload-launcher.io/log-path"
	AnnotationMutexKey      = "workload-launcher.io/mutex-key"
	AnnotationCorrelationID = "workload-launcher.io/correlation-id"

	ManagedByValue = "workload-launcher"
	ContainerName  = "main"
)

// PodOptions are the dataplane-wide pod settings.
type PodOptions struct {
	Namespace        string
	ServiceAccount   string
	ImagePullPolicy  corev1.PullPolicy
	ImagePullSecrets []string
}

// PodRequest is everything needed to render one workload pod.
type PodRequest struct {
	Message       workload.Message
	Input         *workload.LaunchInput
	Tags          workload.Tags
	CorrelationID string
}

// PodName derives a DNS-1123 label from the workload type and id. Names
// that would exceed 63 characters are truncated and suffixed with a hash of
// the full id so distinct ids stay distinct.
func PodName(t workload.Type, workloadID string) string {
	raw := strings.ToLower(string(t)) + "-" + workloadID
	name := sanitize(raw)
	if name == raw && len(name) <= validation.DNS1123LabelMaxLength {
		return name
	}

	sum := sha256.Sum256([]byte(workloadID))
	suffix := hex.EncodeToString(sum[:])[:8]
	max := validation.DNS1123LabelMaxLength - len(suffix) - 1
	if len(name) > max {
		name = strings.TrimRight(name[:max], "-")
	}
	return name + "-" + suffix
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

var reservedLabels = map[string]bool{
	LabelManagedBy:    true,
	LabelWorkloadID:   true,
	LabelWorkloadType: true,
	LabelDataplaneID:  true,
}

// BuildPod renders req into a pod. Message labels that are not valid
// Kubernetes labels are carried as annotations; those with invalid or
// reserved keys are returned as dropped.
func BuildPod(req PodRequest, opts PodOptions) (*corev1.Pod, []string, error) {
	if req.Input == nil {
		return nil, nil, fmt.Errorf("launch input is required")
	}
	in := req.Input
	msg := req.Message

	labels := map[string]string{}
	annotations := map[string]string{}
	var dropped []string

	setLabel := func(k, v string) {
		if reservedLabels[k] || len(validation.IsQualifiedName(k)) > 0 {
			dropped = append(dropped, k)
			return
		}
		if len(validation.IsValidLabelValue(v)) > 0 {
			annotations[k] = v
			return
		}
		labels[k] = v
	}

	for _, l := range msg.Labels {
		setLabel(l.Key, l.Value)
	}
	for k, v := range in.Labels {
		setLabel(k, v)
	}
	for k, v := range in.Annotations {
		annotations[k] = v
	}

	labels[LabelManagedBy] = ManagedByValue
	labels[LabelWorkloadType] = strings.ToLower(string(msg.WorkloadType))
	if len(validation.IsValidLabelValue(msg.WorkloadID)) == 0 {
		labels[LabelWorkloadID] = msg.WorkloadID
	}
	annotations[AnnotationWorkloadID] = msg.WorkloadID
	if req.Tags.DataplaneID != "" && len(validation.IsValidLabelValue(req.Tags.DataplaneID)) == 0 {
		labels[LabelDataplaneID] = req.Tags.DataplaneID
	}

	setAnnotation := func(k, v string) {
		if v != "" {
			annotations[k] = v
		}
	}
	setAnnotation(AnnotationAutoID, msg.AutoID)
	setAnnotation(AnnotationLogPath, msg.LogPath)
	setAnnotation(AnnotationMutexKey, msg.Mutex())
	setAnnotation(AnnotationCorrelationID, req.CorrelationID)

	resources, err := buildResources(in.Resources)
	if err != nil {
		return nil, dropped, err
	}

	serviceAccount := opts.ServiceAccount
	if in.ServiceAccount != "" {
		serviceAccount = in.ServiceAccount
	}

	var pullSecrets []corev1.LocalObjectReference
	for _, s := range opts.ImagePullSecrets {
		pullSecrets = append(pullSecrets, corev1.LocalObjectReference{Name: s})
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        PodName(msg.WorkloadType, msg.WorkloadID),
			Namespace:   opts.Namespace,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: corev1.PodSpec{
			RestartPolicy:      corev1.RestartPolicyNever,
			ServiceAccountName: serviceAccount,
			ImagePullSecrets:   pullSecrets,
			NodeSelector:       in.NodeSelector,
			Containers: []corev1.Container{{
				Name:            ContainerName,
				Image:           in.Image,
				ImagePullPolicy: opts.ImagePullPolicy,
				Command:         in.Command,
				Args:            in.Args,
				Env:             buildEnv(req),
				Resources:       resources,
			}},
		},
	}
	return pod, dropped, nil
}

func buildEnv(req PodRequest) []corev1.EnvVar {
	in := req.Input
	env := make([]corev1.EnvVar, 0, len(in.Env)+len(in.SecretRefs)+7)
	for _, e := range in.Env {
		env = append(env, corev1.EnvVar{Name: e.Name, Value: e.Value})
	}

	env = append(env,
		corev1.EnvVar{Name: "WORKLOAD_ID", Value: req.Message.WorkloadID},
		corev1.EnvVar{Name: "WORKLOAD_TYPE", Value: string(req.Message.WorkloadType)},
		corev1.EnvVar{Name: "DATAPLANE_ID", Value: req.Tags.DataplaneID},
		corev1.EnvVar{Name: "DATAPLANE_NAME", Value: req.Tags.DataplaneName},
		corev1.EnvVar{Name: "LOG_PATH", Value: req.Message.LogPath},
		corev1.EnvVar{Name: "JOB_ID", Value: in.JobID},
		corev1.EnvVar{Name: "ATTEMPT_ID", Value: strconv.Itoa(in.AttemptID)},
	)

	for _, s := range in.SecretRefs {
		env = append(env, corev1.EnvVar{
			Name: s.EnvName,
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: s.SecretName},
					Key:                  s.Key,
				},
			},
		})
	}
	return env
}

func buildResources(r workload.Resources) (corev1.ResourceRequirements, error) {
	requests := corev1.ResourceList{}
	limits := corev1.ResourceList{}

	for _, q := range []struct {
		list  corev1.ResourceList
		name  corev1.ResourceName
		value string
	}{
		{requests, corev1.ResourceCPU, r.CPURequest},
		{limits, corev1.ResourceCPU, r.CPULimit},
		{requests, corev1.ResourceMemory, r.MemoryRequest},
		{limits, corev1.ResourceMemory, r.MemoryLimit},
		{requests, corev1.ResourceEphemeralStorage, r.EphemeralStorageRequest},
		{limits, corev1.ResourceEphemeralStorage, r.EphemeralStorageLimit},
	} {
		if q.value == "" {
			continue
		}
		parsed, err := resource.ParseQuantity(q.value)
		if err != nil {
			return corev1.ResourceRequirements{}, fmt.Errorf("invalid %s quantity %q: %w", q.name, q.value, err)
		}
		q.list[q.name] = parsed
	}

	var out corev1.ResourceRequirements
	if len(requests) > 0 {
		out.Requests = requests
	}
	if len(limits) > 0 {
		out.Limits = limits
	}
	return out, nil
}
