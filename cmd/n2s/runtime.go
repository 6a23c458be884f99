package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/born-ml/n2s/internal/backend/cpu"
	"github.com/born-ml/n2s/internal/backend/webgpu"
	"github.com/born-ml/n2s/internal/config"
	"github.com/born-ml/n2s/internal/hub"
	"github.com/born-ml/n2s/internal/m1"
	"github.com/born-ml/n2s/internal/tensor"
)

// onDevice calls the function matching the configured device with a fresh
// backend.
func onDevice(d config.Device, onCPU func(*cpu.CPUBackend) error, onGPU func(*webgpu.Backend) error) error {
	switch d {
	case config.DeviceCPU:
		return onCPU(cpu.New())
	case config.DeviceWebGPU:
		gpu, err := webgpu.New()
		if err != nil {
			return err
		}
		defer gpu.Release()
		return onGPU(gpu)
	default:
		return fmt.Errorf("unknown device %q", d)
	}
}

func (a *app) mirror() (*hub.Mirror, error) {
	if !a.cfg.Mirror.Enabled() {
		return nil, nil
	}
	m := a.cfg.Mirror
	return hub.NewMirror(hub.MirrorConfig{
		Endpoint:        m.Endpoint,
		Region:          m.Region,
		Bucket:          m.Bucket,
		AccessKeyID:     m.AccessKey,
		SecretAccessKey: m.SecretKey,
		UseSSL:          m.UseSSL,
		Prefix:          m.Prefix,
	})
}

func (a *app) resolver() (*hub.Resolver, error) {
	mirror, err := a.mirror()
	if err != nil {
		return nil, err
	}
	opts := []hub.Option{hub.WithLogger(a.logger)}
	if mirror != nil {
		opts = append(opts, hub.WithMirror(mirror))
	}
	return hub.NewResolver(a.cfg.CacheDir, opts...), nil
}

// loadModel reads the configured M1 checkpoint. A checkpoint missing on disk
// is fetched from the mirror when one is configured. Without any checkpoint
// the pretrained encoder is loaded with untrained heads.
func loadModel[B tensor.Backend](ctx context.Context, a *app, resolver *hub.Resolver, backend B) (*m1.Model[B], error) {
	path := a.cfg.M1.Checkpoint
	if path != "" {
		if err := a.fetchCheckpoint(ctx, path); err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); err == nil {
			a.logger.Info("Loading checkpoint", zap.String("path", path), zap.String("device", backend.Name()))
			return m1.LoadCheckpoint(path, backend)
		}
	}

	a.logger.Warn("No checkpoint found, heads are untrained",
		zap.String("checkpoint", path),
		zap.String("pretrained", a.cfg.M1.Pretrained))
	return m1.Load(ctx, a.cfg.M1.Pretrained, resolver, backend)
}

func (a *app) fetchCheckpoint(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err == nil || !a.cfg.Mirror.Enabled() {
		return nil
	}
	mirror, err := a.mirror()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	err = mirror.FetchFile(ctx, checkpointKey(path), path)
	switch {
	case errors.Is(err, hub.ErrObjectNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("fetch checkpoint: %w", err)
	}
	a.logger.Info("Fetched checkpoint from mirror", zap.String("bucket", mirror.Bucket()), zap.String("path", path))
	return nil
}

// checkpointKey is the mirror key for a checkpoint file.
func checkpointKey(path string) string {
	return "checkpoints/" + filepath.Base(path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
