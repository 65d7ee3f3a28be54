package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	toml "github.com/pelletier/go-toml"
	"github.com/spf13/cobra"
)

const configFileName = ".hopsrc"

type config struct {
	Host                  string `toml:"host"`
	User                  string `toml:"user"`
	InsecureSkipVerifyTLS bool   `toml:"insecure"`
	Verbose               bool   `toml:"verbose"`
}

// loadConfig reads the HOPS_ env variables, then the first .hopsrc file found.
// Values from the environment and the flags take precedence.
func loadConfig(cmd *cobra.Command) (*config, error) {
	c := &config{}

	file, _ := cmd.Flags().GetString("file")
	files := []string{file}
	if file == "" {
		files = nil
		if dir, err := os.Getwd(); err == nil {
			files = append(files, filepath.Join(dir, configFileName))
		}
		if home, err := os.UserHomeDir(); err == nil {
			files = append(files, filepath.Join(home, configFileName))
		}
	}
	for _, f := range files {
		btes, err := os.ReadFile(f)
		if os.IsNotExist(err) && file == "" {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read %s: %v", f, err)
		}
		if err := toml.Unmarshal(btes, c); err != nil {
			return nil, fmt.Errorf("unable to parse %s: %v", f, err)
		}
		break
	}

	if v := os.Getenv("HOPS_API_URL"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("HOPS_USER"); v != "" {
		c.User = v
	}
	if b, err := strconv.ParseBool(os.Getenv("HOPS_INSECURE")); err == nil {
		c.InsecureSkipVerifyTLS = b
	}
	if b, err := strconv.ParseBool(os.Getenv("HOPS_VERBOSE")); err == nil {
		c.Verbose = b
	}
	if insecure, _ := cmd.Flags().GetBool("insecure"); insecure {
		c.InsecureSkipVerifyTLS = true
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		c.Verbose = true
	}
	if c.User == "" {
		c.User = os.Getenv("USER")
	}

	if c.Host == "" {
		return c, fmt.Errorf("no hops API URL, set HOPS_API_URL or create a %s file", configFileName)
	}
	return c, nil
}
