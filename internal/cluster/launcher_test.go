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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/thc1006/workload-launcher/pkg/logging"
)

func TestLauncherCreatesPod(t *testing.T) {
	client := fake.NewSimpleClientset()
	l := NewLauncher(client, PodOptions{Namespace: "jobs"}, logging.Discard())
	assert.Equal(t, "jobs", l.Namespace())

	pod, err := l.Launch(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "sync-w1", pod.Name)

	got, err := client.CoreV1().Pods("jobs").Get(context.Background(), "sync-w1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.PullIfNotPresent, got.Spec.Containers[0].ImagePullPolicy)
}

func TestLauncherDefaultsNamespace(t *testing.T) {
	l := NewLauncher(fake.NewSimpleClientset(), PodOptions{}, logging.Discard())
	assert.Equal(t, metav1.NamespaceDefault, l.Namespace())
}

func TestLauncherExistingPodIsAlreadyLaunched(t *testing.T) {
	client := fake.NewSimpleClientset()
	l := NewLauncher(client, PodOptions{Namespace: "jobs"}, logging.Discard())

	first, err := l.Launch(context.Background(), testRequest())
	require.NoError(t, err)

	again, err := l.Launch(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrAlreadyLaunched)
	require.NotNil(t, again)
	assert.Equal(t, first.Name, again.Name)
}

func TestLauncherNameClashWithOtherWorkloadIsError(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.Pod{ObjectMeta: metav1.ObjectMeta{
		Name:        "sync-w1",
		Namespace:   "jobs",
		Annotations: map[string]string{AnnotationWorkloadID: "other"},
	}})
	l := NewLauncher(client, PodOptions{Namespace: "jobs"}, logging.Discard())

	_, err := l.Launch(context.Background(), testRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyLaunched)
	assert.True(t, apierrors.IsAlreadyExists(err))
}

func TestLauncherFind(t *testing.T) {
	client := fake.NewSimpleClientset()
	l := NewLauncher(client, PodOptions{Namespace: "jobs"}, logging.Discard())
	req := testRequest()

	pod, err := l.Find(context.Background(), req.Message.WorkloadType, req.Message.WorkloadID)
	require.NoError(t, err)
	assert.Nil(t, pod)

	_, err = l.Launch(context.Background(), req)
	require.NoError(t, err)

	pod, err = l.Find(context.Background(), req.Message.WorkloadType, req.Message.WorkloadID)
	require.NoError(t, err)
	require.NotNil(t, pod)
	assert.Equal(t, "sync-w1", pod.Name)
}

func TestLauncherPropagatesRejection(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("create", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(corev1.Resource("pods"), "sync-w1", errors.New("exceeded quota"))
	})
	l := NewLauncher(client, PodOptions{Namespace: "jobs"}, logging.Discard())

	_, err := l.Launch(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, apierrors.IsForbidden(err))
	assert.Contains(t, err.Error(), "exceeded quota")
}

func TestLauncherBuildFailureSkipsCreate(t *testing.T) {
	client := fake.NewSimpleClientset()
	l := NewLauncher(client, PodOptions{}, logging.Discard())

	req := testRequest()
	req.Input.Resources.MemoryLimit = "???"
	_, err := l.Launch(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, client.Actions())
}
