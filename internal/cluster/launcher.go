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
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/thc1006/workload-launcher/pkg/logging"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

// ErrAlreadyLaunched is returned with the existing pod when the workload's
// pod was created by an earlier delivery.
var ErrAlreadyLaunched = errors.New("pod already launched")

// Launcher submits workload pods. It waits only for the API server to
// accept the pod, never for it to run.
type Launcher struct {
	client kubernetes.Interface
	opts   PodOptions
	logger logging.Logger
}

// NewLauncher creates a Launcher.
func NewLauncher(client kubernetes.Interface, opts PodOptions, logger logging.Logger) *Launcher {
	if opts.Namespace == "" {
		opts.Namespace = metav1.NamespaceDefault
	}
	if opts.ImagePullPolicy == "" {
		opts.ImagePullPolicy = corev1.PullIfNotPresent
	}
	return &Launcher{client: client, opts: opts, logger: logger}
}

// Namespace is the namespace pods are created in.
func (l *Launcher) Namespace() string {
	return l.opts.Namespace
}

// Find returns the pod previously created for the workload, or nil if there
// is none. A pod with the same name that belongs to another workload is an
// error.
func (l *Launcher) Find(ctx context.Context, t workload.Type, workloadID string) (*corev1.Pod, error) {
	name := PodName(t, workloadID)
	pod, err := l.client.CoreV1().Pods(l.opts.Namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pod %s/%s: %w", l.opts.Namespace, name, err)
	}
	if owner := pod.Annotations[AnnotationWorkloadID]; owner != workloadID {
		return nil, fmt.Errorf("pod %s/%s belongs to workload %q", pod.Namespace, pod.Name, owner)
	}
	return pod, nil
}

// Launch builds and creates the pod for req. If the workload's pod already
// exists the existing pod is returned with ErrAlreadyLaunched; a name clash
// with another workload's pod is an error.
func (l *Launcher) Launch(ctx context.Context, req PodRequest) (*corev1.Pod, error) {
	pod, dropped, err := BuildPod(req, l.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build pod: %w", err)
	}

	logger := l.logger.WithWorkload(req.Tags)
	if len(dropped) > 0 {
		logger.WarnEvent("Dropped labels with invalid keys", "keys", dropped)
	}

	created, err := l.client.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		existing, findErr := l.Find(ctx, req.Message.WorkloadType, req.Message.WorkloadID)
		if findErr == nil && existing != nil {
			logger.InfoEvent("Pod already exists for workload", "pod", existing.Name, "namespace", existing.Namespace)
			return existing, ErrAlreadyLaunched
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create pod %s/%s: %w", pod.Namespace, pod.Name, err)
	}

	logger.DebugEvent("Pod accepted", "pod", created.Name, "namespace", created.Namespace)
	return created, nil
}
