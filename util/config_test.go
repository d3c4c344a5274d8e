package util

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEmbeddedConfigParses(t *testing.T) {
	c := &AppConfig{}
	if err := yaml.Unmarshal(embeddedConfig, c); err != nil {
		t.Fatalf("Embedded default config does not parse: %v", err)
	}

	if c.Conf.HttpPort == 0 {
		t.Error("Default config should set an http port")
	}
	if c.Conf.Host == "" {
		t.Error("Default config should set a host")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GOMPHODON_HOST", "0.0.0.0")
	t.Setenv("GOMPHODON_HTTPPORT", "9090")
	t.Setenv("GOMPHODON_WITH_AP", "true")
	t.Setenv("GOMPHODON_BACKFILL_PARALLEL", "4")

	conf, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if conf.Conf.Host != "0.0.0.0" {
		t.Errorf("Host override ignored: %s", conf.Conf.Host)
	}
	if conf.Conf.HttpPort != 9090 {
		t.Errorf("Port override ignored: %d", conf.Conf.HttpPort)
	}
	if !conf.Conf.WithAp {
		t.Error("WithAp override ignored")
	}
	if conf.Conf.BackfillParallel != 4 {
		t.Errorf("BackfillParallel override ignored: %d", conf.Conf.BackfillParallel)
	}
}

func TestBackfillParallelDefault(t *testing.T) {
	conf, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}

	if conf.Conf.BackfillParallel <= 0 {
		t.Errorf("BackfillParallel should default above zero, got %d", conf.Conf.BackfillParallel)
	}
}
