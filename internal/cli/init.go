package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/icecat/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize icecat configuration and storage",
		Long: "Create the configuration directory with a default config.yaml and,\n" +
			"for the sqlite transport, the catalog database in the data directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.settings()
			if err != nil {
				return err
			}
			configDir, err := paths.ResolveConfigDir(a.configDir)
			if err != nil {
				return fmt.Errorf("resolve config dir: %w", err)
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			fmt.Fprintln(a.out, "icecat initialized successfully")
			fmt.Fprintln(a.out, "  config:   ", configDir)
			fmt.Fprintln(a.out, "  data:     ", s.DataDir)
			fmt.Fprintln(a.out, "  warehouse:", c.Config().Warehouse)
			return nil
		},
	}
}
