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

// Command workload-launcher registers a dataplane with the workload
// registry, consumes workload requests from a queue and launches each one
// as a Kubernetes pod.
package main

import (
	"context"
	goflag "flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/thc1006/workload-launcher/pkg/config"
	"github.com/thc1006/workload-launcher/pkg/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configFile string
	envFile    string
	kubeconfig string
	logLevel   string
	zapOpts    crzap.Options
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "workload-launcher",
		Short:         "Claim queued workloads and launch them as Kubernetes pods",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLauncher(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to a YAML config file; environment variables override it")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	flags.StringVar(&opts.kubeconfig, "kubeconfig", "", "Path to a kubeconfig; defaults to in-cluster or ~/.kube/config")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug|info|warn|error); overrides LOG_LEVEL")

	zapFlags := goflag.NewFlagSet("zap", goflag.ContinueOnError)
	opts.zapOpts.BindFlags(zapFlags)
	flags.AddGoFlagSet(zapFlags)

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the launcher (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runLauncher(cmd.Context(), opts)
			},
		},
		newEnqueueCommand(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

// loadConfig loads the dotenv file, then the config file or environment.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.envFile, err)
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if opts.configFile != "" {
		cfg, err = config.LoadFromFile(opts.configFile)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		cfg.LogLevel = strings.ToLower(opts.logLevel)
	}
	return cfg, nil
}

// setupLogging installs one logr sink for our code, controller-runtime and
// client-go.
func setupLogging(cfg *config.Config, opts *rootOptions) logr.Logger {
	root := logging.NewRoot(logging.LogLevel(cfg.LogLevel), &opts.zapOpts)
	ctrl.SetLogger(root)
	klog.SetLogger(root.WithName("client-go"))
	return root
}

func runLauncher(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	root := setupLogging(cfg, opts)
	setupLog := logging.FromLogr(root, logging.ComponentLauncher)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctrl.SetupSignalHandler().Done():
			setupLog.InfoEvent("Shutdown signal received")
			cancel()
		case <-ctx.Done():
		}
	}()

	setupLog.InfoEvent("Starting workload launcher", "version", version, "queueBackend", cfg.QueueBackend)
	if err := newLauncher(root, cfg, opts.kubeconfig).run(ctx); err != nil {
		setupLog.ErrorEvent(err, "Workload launcher exited with error")
		return err
	}
	setupLog.InfoEvent("Workload launcher stopped")
	return nil
}
