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
	"time"

	"github.com/google/uuid"

	"github.com/thc1006/workload-launcher/pkg/logging"
	"github.com/thc1006/workload-launcher/pkg/workload"
)

// IdentitySource supplies the dataplane correlation tags.
type IdentitySource interface {
	DataplaneID() string
	DataplaneName() string
}

// Ingress turns an inbound message into a fresh launch envelope.
type Ingress struct {
	identity IdentitySource
	logger   logging.Logger
	now      func() time.Time
}

func NewIngress(identity IdentitySource, logger logging.Logger) *Ingress {
	return &Ingress{identity: identity, logger: logger, now: time.Now}
}

// Adapt builds the envelope for msg, stamping correlation tags, a
// correlation id and the receipt time.
func (i *Ingress) Adapt(msg workload.Message) *LaunchStageIO {
	tags := workload.Tags{
		WorkloadType:  msg.WorkloadType,
		WorkloadID:    msg.WorkloadID,
		DataplaneID:   i.identity.DataplaneID(),
		DataplaneName: i.identity.DataplaneName(),
	}
	correlationID := uuid.NewString()

	return &LaunchStageIO{
		Base: Base{
			Msg:           msg,
			Tags:          tags,
			CorrelationID: correlationID,
			ReceivedAt:    i.now(),
			Logger:        i.logger.WithWorkload(tags).WithValues("correlationId", correlationID),
		},
	}
}
