package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pulsewatch/pulsewatch/internal/config"
)

const defaultConfigPath = "pulsewatch.yaml"

// configInitCmd builds the interactive configuration wizard.
func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("output")

			if _, err := os.Stat(path); err == nil {
				var overwrite bool
				confirm := huh.NewConfirm().
					Title(fmt.Sprintf("%s already exists. Overwrite?", path)).
					Value(&overwrite)
				if err := confirm.Run(); err != nil {
					return err
				}
				if !overwrite {
					return nil
				}
			}

			var (
				bind     = config.DefaultBind
				database = config.DefaultDatabase
				token    string
				domain   = "https://api.vk.com/method/wall.getById"
				interval = config.DefaultInterval.String()
				period   = config.DefaultWindowPeriod.String()
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Listen address").
						Value(&bind),
					huh.NewInput().
						Title("SQLite database path").
						Value(&database),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("VK access token").
						EchoMode(huh.EchoModePassword).
						Value(&token),
					huh.NewInput().
						Title("VK API endpoint").
						Value(&domain),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("Poll interval").
						Description("How often each watched post is sampled, e.g. 30s").
						Value(&interval),
					huh.NewInput().
						Title("Window period").
						Description("How long a watch stays open, e.g. 5m").
						Value(&period),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			pollInterval, err := time.ParseDuration(interval)
			if err != nil {
				return fmt.Errorf("invalid poll interval %q: %w", interval, err)
			}
			windowPeriod, err := time.ParseDuration(period)
			if err != nil {
				return fmt.Errorf("invalid window period %q: %w", period, err)
			}

			cfg := config.Config{
				Bind:     bind,
				Database: database,
				Poll: config.PollConfig{
					Interval:     config.Duration(pollInterval),
					WindowPeriod: config.Duration(windowPeriod),
					FetchTimeout: config.Duration(config.DefaultFetchTimeout),
				},
				VK: config.VKConfig{
					Token:   token,
					Domain:  domain,
					Version: config.DefaultVKVersion,
				},
			}
			if err := config.Validate(&cfg); err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}

			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", defaultConfigPath, "Where to write the configuration")
	return cmd
}
