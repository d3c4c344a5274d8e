package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
)

const Name = "gomphodon"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host             string
		HttpPort         int    `yaml:"httpPort"`
		SslDomain        string `yaml:"sslDomain"`
		WithAp           bool   `yaml:"withAp"`
		Closed           bool   `yaml:"closed"`
		BackfillParallel int    `yaml:"backfillParallel"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("GOMPHODON_HOST")
	envHttpPort := os.Getenv("GOMPHODON_HTTPPORT")
	envSslDomain := os.Getenv("GOMPHODON_SSLDOMAIN")
	envWithAp := os.Getenv("GOMPHODON_WITH_AP")
	envClosed := os.Getenv("GOMPHODON_CLOSED")
	envBackfill := os.Getenv("GOMPHODON_BACKFILL_PARALLEL")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envWithAp == "true" {
		c.Conf.WithAp = true
	}

	if envClosed == "true" {
		c.Conf.Closed = true
	}

	if envBackfill != "" {
		v, err := strconv.Atoi(envBackfill)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.BackfillParallel = v
	}

	if c.Conf.BackfillParallel <= 0 {
		c.Conf.BackfillParallel = 2
	}

	return c, nil
}
