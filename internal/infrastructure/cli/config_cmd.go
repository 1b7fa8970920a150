package cli

import (
	"fmt"
	"os"

	"github.com/felixgeelhaar/farol/internal/infrastructure/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the farol configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveConfigPath()
		if _, err := os.Stat(path); err == nil && !configForce {
			return NewCLIError(fmt.Sprintf("%s already exists", path), "Pass --force to overwrite it", nil)
		}

		cfg := config.Default()
		cfg.Trello.Boards = []string{"<board-id>"}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s. Set trello.key and trello.token, or export TRELLO_KEY and TRELLO_TOKEN.\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config file for problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveConfigPath()
		if _, err := loadConfig(path, true); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(resolveConfigPath(), false)
		if err != nil {
			return err
		}
		cfg.Trello.Key = redact(cfg.Trello.Key)
		cfg.Trello.Token = redact(cfg.Trello.Token)
		cfg.Webhook.Secret = redact(cfg.Webhook.Secret)
		for i := range cfg.Notify {
			cfg.Notify[i].Secret = redact(cfg.Notify[i].Secret)
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer func() { _ = enc.Close() }()
		return enc.Encode(cfg)
	},
}

func redact(secret string) string {
	if len(secret) <= 4 {
		if secret == "" {
			return ""
		}
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configValidateCmd, configShowCmd)
	RootCmd.AddCommand(configCmd)
}
