package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tsawler/go-volrecon/checkpoints"
	"github.com/tsawler/go-volrecon/engine"
)

func TestBuildConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	if err := os.WriteFile(path, []byte(`{"save_path": "/tmp/a", "epochs": 40, "verbose": true}`), 0644); err != nil {
		t.Fatal(err)
	}

	config, err := buildConfig(options{configPath: path, epochs: 5, format: "json", aux: true})
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}
	if config.SavePath != "/tmp/a" || config.Epochs != 5 {
		t.Errorf("unexpected config %+v", config)
	}
	if config.Format != checkpoints.FormatJSON || !config.AuxiliaryLoss || !config.Verbose {
		t.Errorf("flags not applied: %+v", config)
	}

	if _, err := buildConfig(options{format: "onnx"}); err == nil {
		t.Error("expected error for unknown checkpoint format")
	}
}

func TestBuildOptimizer(t *testing.T) {
	model, err := engine.NewReconModel(engine.DefaultReconModelConfig())
	if err != nil {
		t.Fatalf("NewReconModel failed: %v", err)
	}
	for _, name := range []string{"adam", "sgd"} {
		opt, err := buildOptimizer(options{optimizer: name, lr: 0.01, beta1: 0.9, beta2: 0.999}, model)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if opt.GetLearningRate() != 0.01 {
			t.Errorf("%s: learning rate %f", name, opt.GetLearningRate())
		}
	}
	if _, err := buildOptimizer(options{optimizer: "lbfgs"}, model); err == nil {
		t.Error("expected error for unknown optimizer")
	}
}
