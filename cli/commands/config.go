package commands

import (
	"net/url"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schemadelta/cli/internal/config"
)

func newConfigCommand(root *rootOptions) *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Show the configuration after merging the config file, environment, .env files
and flags. With --save it is written to ~/.config/schemadelta/.schemadelta.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := root.load(cmd)
			if err != nil {
				return err
			}
			if err := e.out.Table([]string{"Setting", "Value"}, [][]string{
				{"database_url", redact(e.cfg.DatabaseURL)},
				{"provider", e.cfg.Provider},
				{"auth_user_model", e.cfg.AuthUserModel},
				{"migrations_dir", e.cfg.MigrationsDir},
				{"log_level", e.cfg.LogLevel},
			}); err != nil {
				return err
			}
			if !save {
				return nil
			}
			if err := config.SaveConfig(e.cfg); err != nil {
				return err
			}
			e.out.Success("Configuration saved")
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "write the resolved configuration to the user config file")
	return cmd
}

// redact hides the password of URL-style connection strings.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
