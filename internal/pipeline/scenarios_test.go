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

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/thc1006/workload-launcher/internal/controlplane"
	"github.com/thc1006/workload-launcher/pkg/logging"
)

var _ = ginkgo.Describe("Launch pipeline", func() {
	var (
		cp       *fakeControlPlane
		launcher *fakeLauncher
		p        *LaunchPipeline
		ctx      context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		cp = newFakeControlPlane()
		launcher = &fakeLauncher{}

		var err error
		p, err = New(Dependencies{
			ControlPlane: cp,
			Launcher:     launcher,
			Identity:     staticIdentity{id: "dp-1", name: "east"},
		}, logging.Discard())
		Expect(err).NotTo(HaveOccurred())
	})

	ginkgo.Context("when the workload is claimable and its input is valid", func() {
		ginkgo.It("launches exactly one pod and reports nothing", func() {
			cp.add("w1", controlplane.StatusPending, "")

			io, err := p.Process(ctx, syncMessage("w1", "conn-123", validSyncPayload))
			Expect(err).NotTo(HaveOccurred())
			Expect(io.Skip).To(BeFalse())
			Expect(io.Input).NotTo(BeNil())
			Expect(io.PodName).To(Equal("sync-w1"))

			Expect(launcher.count()).To(Equal(1))
			Expect(*launcher.requests[0].Message.MutexKey).To(Equal("conn-123"))
			Expect(cp.reportCount()).To(BeZero())
		})
	})

	ginkgo.Context("when the workload is redelivered after another dataplane claimed it", func() {
		ginkgo.It("skips without submitting or reporting", func() {
			cp.add("w1", controlplane.StatusClaimed, "dp-2")

			io, err := p.Process(ctx, syncMessage("w1", "conn-123", validSyncPayload))
			Expect(err).NotTo(HaveOccurred())
			Expect(io.Skip).To(BeTrue())
			Expect(io.Input).To(BeNil())

			Expect(launcher.count()).To(BeZero())
			Expect(cp.reportCount()).To(BeZero())
			Expect(cp.statusCalls).To(BeZero())
		})

		ginkgo.It("skips a second delivery to the same dataplane after launch", func() {
			cp.add("w1", controlplane.StatusPending, "")
			msg := syncMessage("w1", "conn-123", validSyncPayload)

			_, err := p.Process(ctx, msg)
			Expect(err).NotTo(HaveOccurred())
			io, err := p.Process(ctx, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(io.Skip).To(BeTrue())
			Expect(launcher.count()).To(Equal(1))
			Expect(cp.reportCount()).To(BeZero())
		})
	})

	ginkgo.Context("when the input payload cannot be parsed", func() {
		ginkgo.It("reports one Build-Input failure and never submits", func() {
			cp.add("w1", controlplane.StatusPending, "")

			_, err := p.Process(ctx, syncMessage("w1", "conn-123", "not-json"))
			Expect(err).To(MatchError(ErrMalformedInput))

			Expect(launcher.count()).To(BeZero())
			Expect(cp.reportCount()).To(Equal(1))
			Expect(cp.reports[0].WorkloadID).To(Equal("w1"))
			Expect(cp.reports[0].Source).To(Equal("Build-Input"))
		})
	})
})
