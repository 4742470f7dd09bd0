package common

import (
	"fmt"
	"os"
)

// ConfigPaths is a flag.Value that allows multiple -config flags
type ConfigPaths []string

func (c *ConfigPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *ConfigPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

// DiscoverConfigFiles returns the given paths, or the first default config file
// found when none were specified.
func DiscoverConfigFiles(paths ConfigPaths) []string {
	if len(paths) > 0 {
		return paths
	}

	for _, candidate := range []string{"psdocling.toml", "deployments/local/psdocling.toml"} {
		if _, err := os.Stat(candidate); err == nil {
			return []string{candidate}
		}
	}

	return nil
}
