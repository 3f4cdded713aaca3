package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/agent/claudecode"
	"github.com/vivariumhq/vivarium/cmd/vivarium/cli/logging"
)

// defaultServerURL is where relay verbs post events; kept in sync with
// settings.Default().ListenAddr.
const defaultServerURL = "http://127.0.0.1:4607"

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Agent hook management and handlers",
	}
	cmd.AddCommand(newHooksClaudeCmd())
	return cmd
}

func newHooksClaudeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claude",
		Short: "Claude Code hook handlers",
		Long:  "Installs the Claude Code hooks that feed the daemon, and handles their invocations.",
	}

	cmd.AddCommand(newHooksClaudeInstallCmd())
	cmd.AddCommand(newHooksClaudeUninstallCmd())
	cmd.AddCommand(newHooksClaudeStatusCmd())

	// Relay verbs invoked by Claude Code itself. Hidden: not for direct
	// user use.
	for _, verb := range []string{
		claudecode.HookNamePreToolUse,
		claudecode.HookNamePostToolUse,
		claudecode.HookNameStop,
	} {
		cmd.AddCommand(newHookRelayCmd(verb))
	}
	return cmd
}

func newHooksClaudeInstallCmd() *cobra.Command {
	var (
		localDev bool
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install vivarium hooks into .claude/settings.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to determine working directory: %w", err)
			}
			count, err := claudecode.InstallHooks(root, localDev, force)
			if err != nil {
				return err
			}
			if count == 0 {
				cmd.Println("Hooks already installed.")
				return nil
			}
			cmd.Printf("Installed %d hook(s).\n", count)
			return nil
		},
	}
	cmd.Flags().BoolVar(&localDev, "local-dev", false, "use go run instead of the installed binary")
	cmd.Flags().BoolVar(&force, "force", false, "reinstall, replacing existing vivarium hooks")
	return cmd
}

func newHooksClaudeUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove vivarium hooks from .claude/settings.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to determine working directory: %w", err)
			}
			if err := claudecode.UninstallHooks(root); err != nil {
				return err
			}
			cmd.Println("Hooks removed.")
			return nil
		},
	}
}

func newHooksClaudeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether vivarium hooks are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to determine working directory: %w", err)
			}
			if claudecode.AreHooksInstalled(root) {
				cmd.Println("Hooks installed.")
			} else {
				cmd.Println("Hooks not installed.")
			}
			return nil
		},
	}
}

// newHookRelayCmd builds a hidden relay verb. Relay commands always exit
// zero: a missing or failing daemon must never block the agent.
func newHookRelayCmd(verb string) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:    verb,
		Short:  "Handle the " + verb + " Claude Code hook",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithComponent(cmd.Context(), "hooks")

			payload, err := claudecode.ParseHookPayload(cmd.InOrStdin())
			if err != nil {
				logging.Debug(ctx, "ignoring malformed hook payload",
					slog.String("hook", verb),
					slog.Any("error", err),
				)
				return nil
			}

			relay := claudecode.NewRelay(serverURL)
			if err := relay.Deliver(ctx, verb, payload, time.Now()); err != nil {
				logging.Debug(ctx, "failed to deliver hook events",
					slog.String("hook", verb),
					slog.Any("error", err),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "daemon base URL")
	return cmd
}
