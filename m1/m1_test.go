// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package m1_test

import (
	"context"
	"errors"
	"testing"

	"github.com/born-ml/n2s/backend/cpu"
	"github.com/born-ml/n2s/m1"
)

func TestLoadUnknownModel(t *testing.T) {
	resolver := m1.NewResolver(t.TempDir())
	_, err := m1.Load(context.Background(), "nobody/nothing", resolver, cpu.New())
	if !errors.Is(err, m1.ErrUnknownModel) {
		t.Fatalf("Load() error = %v, want ErrUnknownModel", err)
	}
}

func TestLabelStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{m1.ConnOp(1).String(), "AND"},
		{m1.Agg(4).String(), "COUNT"},
		{m1.CondOp(2).String(), "="},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("label = %q, want %q", tt.got, tt.want)
		}
	}
	if m1.NumConnOps != 3 || m1.NumAggs != 7 || m1.NumCondOps != 5 {
		t.Errorf("head widths = %d/%d/%d, want 3/7/5", m1.NumConnOps, m1.NumAggs, m1.NumCondOps)
	}
}
