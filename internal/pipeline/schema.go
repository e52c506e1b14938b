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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/thc1006/workload-launcher/pkg/workload"
)

const launchInputSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": {
		"image": {"type": "string", "minLength": 1},
		"command": {"type": "array", "items": {"type": "string"}},
		"args": {"type": "array", "items": {"type": "string"}},
		"connectionId": {"type": "string", "minLength": 1},
		"actorId": {"type": "string", "minLength": 1},
		"jobId": {"type": "string"},
		"attemptId": {"type": "integer", "minimum": 0},
		"resources": {
			"type": "object",
			"properties": {
				"cpuRequest": {"type": "string"},
				"cpuLimit": {"type": "string"},
				"memoryRequest": {"type": "string"},
				"memoryLimit": {"type": "string"},
				"ephemeralStorageRequest": {"type": "string"},
				"ephemeralStorageLimit": {"type": "string"}
			},
			"additionalProperties": false
		},
		"env": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"value": {"type": "string"}
				},
				"required": ["name"],
				"additionalProperties": false
			}
		},
		"secretRefs": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"envName": {"type": "string", "minLength": 1},
					"secretName": {"type": "string", "minLength": 1},
					"key": {"type": "string", "minLength": 1}
				},
				"required": ["envName", "secretName", "key"],
				"additionalProperties": false
			}
		},
		"labels": {"type": "object", "additionalProperties": {"type": "string"}},
		"annotations": {"type": "object", "additionalProperties": {"type": "string"}},
		"nodeSelector": {"type": "object", "additionalProperties": {"type": "string"}},
		"serviceAccount": {"type": "string"}
	},
	"required": %s
}`

// requiredFields lists the payload fields each workload type must carry.
var requiredFields = map[workload.Type][]string{
	workload.TypeSync:     {"image", "connectionId"},
	workload.TypeCheck:    {"image", "actorId"},
	workload.TypeDiscover: {"image", "actorId"},
	workload.TypeSpec:     {"image"},
}

// InputSchemas holds one compiled schema per workload type.
type InputSchemas struct {
	schemas map[workload.Type]*gojsonschema.Schema
}

// NewInputSchemas compiles the launch input schemas.
func NewInputSchemas() (*InputSchemas, error) {
	out := &InputSchemas{schemas: make(map[workload.Type]*gojsonschema.Schema, len(requiredFields))}
	for t, required := range requiredFields {
		req, err := json.Marshal(required)
		if err != nil {
			return nil, err
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(fmt.Sprintf(launchInputSchema, req)))
		if err != nil {
			return nil, fmt.Errorf("compile %s input schema: %w", t, err)
		}
		out.schemas[t] = schema
	}
	return out, nil
}

// Validate checks payload against the schema for t.
func (s *InputSchemas) Validate(t workload.Type, payload []byte) error {
	schema, ok := s.schemas[t]
	if !ok {
		return fmt.Errorf("no input schema for workload type %q", t)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}
