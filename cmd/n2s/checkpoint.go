package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/backend/webgpu"
	"github.com/born-ml/n2s/internal/m1"
	"github.com/born-ml/n2s/internal/tensor"
)

func newCheckpointCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage M1 checkpoints",
	}
	cmd.AddCommand(newCheckpointInitCmd(a), newCheckpointPushCmd(a))
	return cmd
}

func newCheckpointInitCmd(a *app) *cobra.Command {
	var (
		out   string
		force bool
		push  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a checkpoint from the pretrained encoder with new heads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				out = a.cfg.M1.Checkpoint
			}
			if out == "" {
				return errors.New("no checkpoint path: set m1.checkpoint or --out")
			}
			if !force && fileExists(out) {
				return fmt.Errorf("%s exists, use --force to overwrite", out)
			}
			err := onDevice(a.cfg.Device,
				func(b *cpu.CPUBackend) error { return initCheckpoint(cmd, a, b, out) },
				func(b *webgpu.Backend) error { return initCheckpoint(cmd, a, b, out) },
			)
			if err != nil || !push {
				return err
			}
			return a.pushCheckpoint(cmd, out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (default m1.checkpoint)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing checkpoint")
	cmd.Flags().BoolVar(&push, "push", false, "upload the checkpoint to the mirror")
	return cmd
}

func initCheckpoint[B tensor.Backend](cmd *cobra.Command, a *app, backend B, out string) error {
	resolver, err := a.resolver()
	if err != nil {
		return err
	}
	model, err := m1.Load(cmd.Context(), a.cfg.M1.Pretrained, resolver, backend)
	if err != nil {
		return err
	}
	if err := model.Save(out); err != nil {
		return err
	}
	a.logger.Info("Wrote checkpoint",
		zap.String("path", out),
		zap.String("pretrained", a.cfg.M1.Pretrained),
		zap.Int("tensors", len(model.StateDict())))
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func newCheckpointPushCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "push [path]",
		Short: "Upload a checkpoint to the mirror",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.M1.Checkpoint
			if len(args) == 1 {
				path = args[0]
			}
			return a.pushCheckpoint(cmd, path)
		},
	}
}

func (a *app) pushCheckpoint(cmd *cobra.Command, path string) error {
	mirror, err := a.mirror()
	if err != nil {
		return err
	}
	if mirror == nil {
		return errors.New("no mirror configured: set mirror.endpoint")
	}
	if !fileExists(path) {
		return fmt.Errorf("checkpoint %s does not exist", path)
	}
	key := checkpointKey(path)
	if err := mirror.PutFile(cmd.Context(), key, path); err != nil {
		return err
	}
	a.logger.Info("Pushed checkpoint", zap.String("bucket", mirror.Bucket()), zap.String("key", key))
	return nil
}
