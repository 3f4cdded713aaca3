package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/agent/claudecode"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/settings"
)

func newInitCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up vivarium for this project",
		Long:  "Writes .vivarium/settings.json and installs the agent hooks that feed the daemon.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to determine working directory: %w", err)
			}

			cfg, err := settings.Load(root)
			if err != nil {
				return err
			}

			installHooks := true
			if !yes {
				form := huh.NewForm(
					huh.NewGroup(
						huh.NewConfirm().
							Title("Install Claude Code hooks?").
							Description("Adds vivarium entries to .claude/settings.json so agent activity reaches the daemon.").
							Value(&installHooks),
						huh.NewConfirm().
							Title("Enable anonymous usage telemetry?").
							Description("Daemon start/stop events only, keyed by a hashed machine id.").
							Value(&cfg.Telemetry),
					),
				)
				if err := form.Run(); err != nil {
					return fmt.Errorf("setup canceled: %w", err)
				}
			}

			if err := settings.Save(root, cfg); err != nil {
				return err
			}
			cmd.Println("Wrote " + settings.SettingsDirName + "/" + settings.SettingsFileName + ".")

			if installHooks {
				count, err := claudecode.InstallHooks(root, false, false)
				if err != nil {
					return err
				}
				if count > 0 {
					cmd.Printf("Installed %d Claude Code hook(s).\n", count)
				} else {
					cmd.Println("Claude Code hooks already installed.")
				}
			}

			cmd.Println("Run `vivarium serve` to start the daemon.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "accept defaults without prompting")
	return cmd
}
