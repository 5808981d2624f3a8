package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

func newNamespaceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "namespace",
		Aliases: []string{"ns"},
		Short:   "Manage namespaces",
	}
	cmd.AddCommand(newNamespaceListCmd(a))
	cmd.AddCommand(newNamespaceCreateCmd(a))
	cmd.AddCommand(newNamespaceDropCmd(a))
	return cmd
}

func newNamespaceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [parent]",
		Short: "List namespaces, or the children of parent",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var parent types.Namespace
			if len(args) == 1 {
				ns, err := types.ParseNamespace(args[0])
				if err != nil {
					return err
				}
				parent = ns
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			namespaces, err := c.ListNamespaces(cmd.Context(), parent)
			if err != nil {
				return err
			}
			if namespaces == nil {
				namespaces = []types.Namespace{}
			}
			return a.render(namespaces, func(w io.Writer) {
				for _, ns := range namespaces {
					fmt.Fprintln(w, ns.String())
				}
			})
		},
	}
}

func newNamespaceCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <namespace> [key=value...]",
		Short: "Create a namespace with optional properties",
		Example: `  icecat namespace create db
  icecat namespace create db.sales owner=analytics`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := types.ParseNamespace(args[0])
			if err != nil {
				return err
			}
			props, err := parseProperties(args[1:])
			if err != nil {
				return err
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			if err := c.CreateNamespace(cmd.Context(), ns, props); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "created namespace %s\n", ns)
			return nil
		},
	}
}

func newNamespaceDropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <namespace>",
		Short: "Drop an empty namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := types.ParseNamespace(args[0])
			if err != nil {
				return err
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			if err := c.DropNamespace(cmd.Context(), ns); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "dropped namespace %s\n", ns)
			return nil
		},
	}
}
