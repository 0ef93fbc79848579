// Package config holds flag/env/file configuration for both binaries.
// Precedence, lowest to highest: env defaults, config file, command line.
package config

import (
	"flag"
	"os"

	"gopkg.in/yaml.v3"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadYAML unmarshals a config file into dst and then re-applies every flag
// given on the command line, so explicit flags win over file values. Must
// run after flag.Parse().
func loadYAML(path string, dst any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	keep := map[string]string{}
	flag.Visit(func(f *flag.Flag) { keep[f.Name] = f.Value.String() })
	if err := yaml.Unmarshal(b, dst); err != nil {
		return err
	}
	for name, v := range keep {
		if err := flag.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}
