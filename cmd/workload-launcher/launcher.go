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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"

	"github.com/thc1006/workload-launcher/internal/cluster"
	"github.com/thc1006/workload-launcher/internal/controlplane"
	"github.com/thc1006/workload-launcher/internal/identity"
	"github.com/thc1006/workload-launcher/internal/pipeline"
	"github.com/thc1006/workload-launcher/internal/probes"
	"github.com/thc1006/workload-launcher/internal/queue"
	"github.com/thc1006/workload-launcher/internal/telemetry"
	"github.com/thc1006/workload-launcher/pkg/config"
	"github.com/thc1006/workload-launcher/pkg/logging"
)

type launcher struct {
	root       logr.Logger
	cfg        *config.Config
	kubeconfig string
	log        logging.Logger
}

func newLauncher(root logr.Logger, cfg *config.Config, kubeconfig string) *launcher {
	return &launcher{
		root:       root,
		cfg:        cfg,
		kubeconfig: kubeconfig,
		log:        logging.FromLogr(root, logging.ComponentLauncher),
	}
}

func (l *launcher) component(name string) logging.Logger {
	return logging.FromLogr(l.root, name)
}

func (l *launcher) run(ctx context.Context) error {
	cfg := l.cfg

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "workload-launcher",
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			l.log.ErrorEvent(err, "Failed to flush traces")
		}
	}()

	cp, err := newControlPlaneClient(cfg, l.component(logging.ComponentControlPlane))
	if err != nil {
		return err
	}

	idSvc := identity.NewService(cp, cfg.ClientID, nil, l.component(logging.ComponentIdentity))
	if _, err := idSvc.Initialize(ctx); err != nil {
		return fmt.Errorf("dataplane registration failed: %w", err)
	}

	restCfg, err := cluster.GetKubeConfig(l.kubeconfig)
	if err != nil {
		return err
	}
	clientset, err := cluster.NewClientset(restCfg, 0, 0)
	if err != nil {
		return err
	}
	podLauncher := cluster.NewLauncher(clientset, cluster.PodOptions{
		Namespace:        cfg.Namespace,
		ServiceAccount:   cfg.ServiceAccount,
		ImagePullPolicy:  corev1.PullPolicy(cfg.ImagePullPolicy),
		ImagePullSecrets: cfg.ImagePullSecrets,
	}, l.component(logging.ComponentCluster))

	pipe, err := pipeline.New(pipeline.Dependencies{
		ControlPlane: cp,
		Launcher:     podLauncher,
		Identity:     idSvc,
	}, l.component(logging.ComponentPipeline))
	if err != nil {
		return err
	}

	source, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	consumer := queue.NewConsumer(source, pipe, queue.Options{
		MaxConcurrent: int64(cfg.MaxConcurrentWorkloads),
		DedupWindow:   cfg.DedupWindow,
	}, l.component(logging.ComponentQueue))
	if current, ok := idSvc.Config(); ok {
		consumer.OnDataplaneConfig(current)
	}
	idSvc.Subscribe(consumer.OnDataplaneConfig)

	probeServer := probes.NewServer(cfg.MetricsAddr, idSvc, l.component(logging.ComponentProbes))

	l.log.InfoEvent("Dataplane ready",
		"dataplaneId", idSvc.DataplaneID(),
		"dataplaneName", idSvc.DataplaneName(),
		"state", string(idSvc.State()),
		"namespace", podLauncher.Namespace(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return idSvc.Run(gctx, cfg.HeartbeatInterval) })
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return probeServer.Run(gctx) })
	return g.Wait()
}

func newControlPlaneClient(cfg *config.Config, logger logging.Logger) (*controlplane.Client, error) {
	return controlplane.NewClient(controlplane.ClientConfig{
		BaseURL:      cfg.ControlPlaneURL,
		Timeout:      cfg.ControlPlaneTimeout,
		QPS:          cfg.ControlPlaneQPS,
		Burst:        cfg.ControlPlaneBurst,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}, logger)
}

func newSource(ctx context.Context, cfg *config.Config) (queue.Source, error) {
	switch cfg.QueueBackend {
	case "memory":
		return queue.NewMemorySource(cfg.MaxConcurrentWorkloads * 10), nil
	case "redis":
		return queue.NewRedisSource(ctx, queue.RedisConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Queue:       cfg.QueueName,
			PollTimeout: cfg.QueuePollTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}
