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

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Tags are the correlation attributes attached to every outbound call made
// on behalf of a workload.
type Tags struct {
	WorkloadType  Type
	WorkloadID    string
	DataplaneID   string
	DataplaneName string
}

type tagsKey struct{}

// ContextWithTags returns a copy of ctx carrying t.
func ContextWithTags(ctx context.Context, t Tags) context.Context {
	return context.WithValue(ctx, tagsKey{}, t)
}

// TagsFromContext returns the tags stored in ctx, if any.
func TagsFromContext(ctx context.Context) (Tags, bool) {
	t, ok := ctx.Value(tagsKey{}).(Tags)
	return t, ok
}

// KeysAndValues renders the tags for logr.
func (t Tags) KeysAndValues() []interface{} {
	return []interface{}{
		"workloadType", string(t.WorkloadType),
		"workloadId", t.WorkloadID,
		"dataplaneId", t.DataplaneID,
		"dataplaneName", t.DataplaneName,
	}
}

// Attributes renders the tags as span attributes.
func (t Tags) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("workload.type", string(t.WorkloadType)),
		attribute.String("workload.id", t.WorkloadID),
		attribute.String("dataplane.id", t.DataplaneID),
		attribute.String("dataplane.name", t.DataplaneName),
	}
}

// Headers renders the tags as HTTP headers for control-plane requests.
// Empty values are omitted.
func (t Tags) Headers() map[string]string {
	h := make(map[string]string, 4)
	set := func(k, v string) {
		if v != "" {
			h[k] = v
		}
	}
	set("X-Workload-Type", string(t.WorkloadType))
	set("X-Workload-Id", t.WorkloadID)
	set("X-Dataplane-Id", t.DataplaneID)
	set("X-Dataplane-Name", t.DataplaneName)
	return h
}
