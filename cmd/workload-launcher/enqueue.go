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
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/thc1006/workload-launcher/internal/queue"
)

func newEnqueueCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Push a workload message (JSON) onto the Redis queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.QueueBackend != "redis" {
				return fmt.Errorf("enqueue requires the redis queue backend, got %q", cfg.QueueBackend)
			}

			raw, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			msg, err := queue.Decode(raw)
			if err != nil {
				return err
			}

			source, err := newSource(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer source.Close()

			if err := source.Publish(cmd.Context(), msg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s) on %s\n", msg.WorkloadID, msg.WorkloadType, cfg.QueueName)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Message file, or - for stdin")
	return cmd
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return data, nil
}
