// Package main provides the CLI entry point for the acta daemon.
//
// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder function creates a command and wires
// it to its handler.
package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/spanexx/ACTA-sub001/internal/config"
	"github.com/spanexx/ACTA-sub001/internal/profile"
	"github.com/spanexx/ACTA-sub001/internal/trust"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the daemon.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the acta daemon",
		Long: `Start the acta daemon with the agent runtime and IPC gateway.

The daemon will:
1. Load configuration from the specified file (or built-in defaults)
2. Initialize the active profile, migrating legacy data if present
3. Initialize the LLM provider adapters
4. Start the loopback WebSocket gateway the desktop shell connects to
5. Expose Prometheus metrics when enabled

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  acta serve

  # Start with custom config
  acta serve --config /etc/acta/config.yaml

  # Start with debug logging
  acta serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(),
		"Path to the daemon configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// =============================================================================
// Profile Commands
// =============================================================================

// buildProfileCmd creates the "profile" command group. These operate on the
// profile store directly and do not require a running daemon.
func buildProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage profiles",
	}
	cmd.AddCommand(
		buildProfileListCmd(),
		buildProfileCreateCmd(),
		buildProfileSwitchCmd(),
		buildProfileDeleteCmd(),
	)
	return cmd
}

func buildProfileListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles and mark the active one",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openProfileManager(cmd, configPath)
			if err != nil {
				return err
			}
			profiles, err := manager.List()
			if err != nil {
				return err
			}
			active := manager.Store().ReadPointer()

			for _, p := range profiles {
				marker := " "
				if p.ID == active {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s %-24s trust=%d adapter=%s\n",
					marker, p.ID, p.Name, p.Trust.DefaultTrustLevel, p.LLM.AdapterID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the daemon configuration file")
	return cmd
}

func buildProfileCreateCmd() *cobra.Command {
	var configPath string
	var name string
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openProfileManager(cmd, configPath)
			if err != nil {
				return err
			}
			p, err := manager.Create(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created profile %s (%s)\n", p.ID, p.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the daemon configuration file")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name (defaults to the id)")
	return cmd
}

func buildProfileSwitchCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "switch <id>",
		Short: "Make a profile active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openProfileManager(cmd, configPath)
			if err != nil {
				return err
			}
			p, err := manager.Switch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active profile is now %s\n", p.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the daemon configuration file")
	return cmd
}

func buildProfileDeleteCmd() *cobra.Command {
	var configPath string
	var purge bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a profile",
		Long: `Delete a profile. By default it is moved to the trash directory under
the profile root and purged after 30 days; --purge removes it immediately.

Deleting the active profile promotes the first remaining profile. When no
profile remains the active pointer is cleared.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openProfileManager(cmd, configPath)
			if err != nil {
				return err
			}
			if err := manager.Delete(cmd.Context(), args[0], purge); err != nil {
				return err
			}
			if purge {
				fmt.Fprintf(cmd.OutOrStdout(), "profile %s deleted\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "profile %s moved to trash\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the daemon configuration file")
	cmd.Flags().BoolVar(&purge, "purge", false, "Remove the profile directory instead of trashing it")
	return cmd
}

// =============================================================================
// Rules Commands
// =============================================================================

// buildRulesCmd creates the "rules" command group for remembered trust rules.
func buildRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect remembered trust rules",
	}
	cmd.AddCommand(buildRulesListCmd(), buildRulesRemoveCmd())
	return cmd
}

func buildRulesListCmd() *cobra.Command {
	var configPath string
	var profileID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List remembered rules for a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRuleStore(cmd, configPath, profileID)
			if err != nil {
				return err
			}
			rules, err := store.List()
			if err != nil {
				return err
			}
			sort.Slice(rules, func(i, j int) bool { return rules[i].CreatedAt < rules[j].CreatedAt })

			for _, r := range rules {
				scope := r.ScopePrefix
				if scope == "" {
					scope = "*"
				}
				created := time.UnixMilli(r.CreatedAt).UTC().Format(time.RFC3339)
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-24s scope=%-24s %s  %s\n",
					r.ID, r.Tool, scope, r.Decision, created)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the daemon configuration file")
	cmd.Flags().StringVarP(&profileID, "profile", "p", "", "Profile id (defaults to the active profile)")
	return cmd
}

func buildRulesRemoveCmd() *cobra.Command {
	var configPath string
	var profileID string
	cmd := &cobra.Command{
		Use:   "remove <rule-id>",
		Short: "Remove a remembered rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRuleStore(cmd, configPath, profileID)
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed rule %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Path to the daemon configuration file")
	cmd.Flags().StringVarP(&profileID, "profile", "p", "", "Profile id (defaults to the active profile)")
	return cmd
}

// =============================================================================
// Config Commands
// =============================================================================

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect daemon configuration",
	}
	cmd.AddCommand(buildConfigSchemaCmd())
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the configuration file",
		Long: `Print the JSON Schema describing config.yaml.

Point your editor's YAML language server at the output for completion and
validation of the daemon configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}

// =============================================================================
// Version Command
// =============================================================================

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "acta %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// =============================================================================
// Shared helpers
// =============================================================================

// openProfileManager builds an offline profile manager from the configured
// profile root. Init adopts the active pointer so list and switch see the
// same state the daemon would.
func openProfileManager(cmd *cobra.Command, configPath string) (*profile.Manager, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	manager := profile.NewManager(profile.NewStore(cfg.Profiles.Root))
	if _, err := manager.Init(cmd.Context()); err != nil {
		return nil, err
	}
	return manager, nil
}

// openRuleStore resolves the rule store for the named profile, defaulting to
// the active one.
func openRuleStore(cmd *cobra.Command, configPath, profileID string) (*trust.RuleStore, error) {
	manager, err := openProfileManager(cmd, configPath)
	if err != nil {
		return nil, err
	}

	var p *models.Profile
	if profileID == "" {
		p, err = manager.Active()
	} else {
		p, err = manager.Get(profileID)
	}
	if err != nil {
		return nil, err
	}
	return trust.NewRuleStore(manager.TrustDir(p)), nil
}
