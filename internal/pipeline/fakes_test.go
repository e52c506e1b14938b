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

package pipeline

import (
	"context"
	"net/http"
	"sync"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/thc1006/workload-launcher/internal/cluster"
	"github.com/thc1006/workload-launcher/internal/controlplane"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

// fakeControlPlane is an in-memory claim store. The first claim on a
// pending workload wins; repeat claims by the holder succeed and claims by
// anyone else are refused.
type fakeControlPlane struct {
	mu        sync.Mutex
	workloads map[string]*controlplane.Workload

	claimErr  error
	statusErr error
	reportErr error

	claimCalls  int
	statusCalls int
	reports     []controlplane.FailureRequest
	seenTags    []workload.Tags
}

func newFakeControlPlane() *fakeControlPlane {
	return &fakeControlPlane{workloads: map[string]*controlplane.Workload{}}
}

func (f *fakeControlPlane) add(id string, status controlplane.WorkloadStatus, dataplaneID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workloads[id] = &controlplane.Workload{ID: id, Status: status, DataplaneID: dataplaneID}
}

func (f *fakeControlPlane) Claim(ctx context.Context, req controlplane.ClaimRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimCalls++
	if tags, ok := workload.TagsFromContext(ctx); ok {
		f.seenTags = append(f.seenTags, tags)
	}
	if f.claimErr != nil {
		return false, f.claimErr
	}

	w, ok := f.workloads[req.WorkloadID]
	if !ok {
		return false, &controlplane.APIError{Operation: "Claim", StatusCode: http.StatusNotFound}
	}
	switch w.Status {
	case controlplane.StatusPending:
		w.Status = controlplane.StatusClaimed
		w.DataplaneID = req.DataplaneID
		w.MutexKey = derefString(req.MutexKey)
		return true, nil
	case controlplane.StatusClaimed:
		return w.DataplaneID == req.DataplaneID, nil
	default:
		return false, nil
	}
}

func (f *fakeControlPlane) GetWorkload(ctx context.Context, id string) (*controlplane.Workload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	w, ok := f.workloads[id]
	if !ok {
		return nil, &controlplane.APIError{Operation: "GetWorkload", StatusCode: http.StatusNotFound}
	}
	cp := *w
	return &cp, nil
}

func (f *fakeControlPlane) ReportFailure(ctx context.Context, req controlplane.FailureRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, req)
	return f.reportErr
}

func (f *fakeControlPlane) reportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// fakeLauncher behaves like the pod API: the first submission for a pod
// name is accepted and later ones get the existing pod back with
// cluster.ErrAlreadyLaunched. requests holds accepted submissions only.
type fakeLauncher struct {
	mu       sync.Mutex
	pods     map[string]*corev1.Pod
	requests []cluster.PodRequest
	attempts []cluster.PodRequest
	err      error
}

func (l *fakeLauncher) Launch(ctx context.Context, req cluster.PodRequest) (*corev1.Pod, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = append(l.attempts, req)
	if l.err != nil {
		return nil, l.err
	}

	name := cluster.PodName(req.Message.WorkloadType, req.Message.WorkloadID)
	if existing, ok := l.pods[name]; ok {
		return existing, cluster.ErrAlreadyLaunched
	}
	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{
		Name:        name,
		Namespace:   "jobs",
		Annotations: map[string]string{cluster.AnnotationWorkloadID: req.Message.WorkloadID},
	}}
	if l.pods == nil {
		l.pods = map[string]*corev1.Pod{}
	}
	l.pods[name] = pod
	l.requests = append(l.requests, req)
	return pod, nil
}

func (l *fakeLauncher) Find(ctx context.Context, t workload.Type, workloadID string) (*corev1.Pod, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pods[cluster.PodName(t, workloadID)], nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

type staticIdentity struct {
	id, name string
}

func (s staticIdentity) DataplaneID() string   { return s.id }
func (s staticIdentity) DataplaneName() string { return s.name }

const validSyncPayload = `{"image":"connector/source:1.0","connectionId":"conn-123","jobId":"42","attemptId":1,
"resources":{"cpuRequest":"250m","cpuLimit":"1","memoryRequest":"256Mi","memoryLimit":"1Gi"},
"env":[{"name":"MODE","value":"full"}],
"secretRefs":[{"envName":"TOKEN","secretName":"conn-secret","key":"token"}]}`

func syncMessage(id, mutex, payload string) workload.Message {
	return workload.Message{
		WorkloadID:   id,
		WorkloadType: workload.TypeSync,
		InputPayload: payload,
		MutexKey:     &mutex,
		Labels:       []workload.Label{{Key: "team", Value: "data"}},
		LogPath:      "/logs/" + id,
		AutoID:       "auto-" + id,
	}
}
