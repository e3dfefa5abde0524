package main

import (
	"io"
	"testing"

	"github.com/tinyrt-org/tinyrt/kernelcfg"
)

func TestRunDefaultScenario(t *testing.T) {
	cfg := kernelcfg.Default()
	cfg.Iterations = 300
	cfg.Tasks = 3
	if err := run(cfg, io.Discard); err != nil {
		t.Fatal(err)
	}
}
