package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/clonestream/pkg/config"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the effective configuration",
				Description: `Shows the configuration after defaults, the config file and
CLONESTREAM_* environment overrides are merged.`,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Value: "toml",
						Usage: "Encoding: toml or yaml",
					},
				},
				Action: runConfigShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate a configuration file",
				Action: runConfigValidate,
			},
			{
				Name:  "init",
				Usage: "Write a configuration file with the defaults",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Value: "clonestream.toml",
						Usage: "File to create",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: runConfigInit,
			},
		},
	}
}

// configSource returns the file the configuration is read from, or "".
func configSource(c *cli.Context) string {
	if path := c.String("config"); path != "" {
		return path
	}
	return config.Find()
}

func runConfigShow(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	var content []byte
	switch strings.ToLower(c.String("format")) {
	case "yaml", "yml":
		content, err = yaml.Marshal(cfg)
	case "toml":
		content, err = toml.Marshal(cfg)
	default:
		return fmt.Errorf("unknown encoding %q", c.String("format"))
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	w := c.App.Writer
	if src := configSource(c); src != "" {
		fmt.Fprintf(w, "# Configuration from: %s\n\n", src)
	} else {
		fmt.Fprintln(w, "# Default configuration (no config file found)")
	}
	_, err = w.Write(content)
	return err
}

func runConfigValidate(c *cli.Context) error {
	src := configSource(c)
	cfg := config.DefaultConfig()
	if src != "" {
		loaded, err := config.Load(src)
		if err != nil {
			color.Red("Configuration validation failed:")
			fmt.Fprintf(c.App.Writer, "  - %s\n", err)
			return err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		color.Red("Configuration validation failed:")
		fmt.Fprintf(c.App.Writer, "  - %s\n", err)
		return err
	}

	if src != "" {
		color.Green("Configuration valid: %s", src)
	} else {
		color.Yellow("No config file found. Default configuration is valid.")
	}
	return nil
}

func runConfigInit(c *cli.Context) error {
	path := c.String("path")
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("config file %q already exists (use --force to overwrite)", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}

	content, err := generateDefaultConfig()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	color.Green("Created %s", path)
	return nil
}

func generateDefaultConfig() (string, error) {
	content, err := toml.Marshal(config.DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("failed to marshal config to TOML: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# clonestream configuration\n")
	buf.WriteString("# Environment overrides: CLONESTREAM_<SECTION>__<KEY>, e.g. CLONESTREAM_DETECTOR__CHUNK_SIZE=7\n\n")
	buf.Write(content)
	return buf.String(), nil
}
