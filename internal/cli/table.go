package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/icecat/pkg/catalog"
	"github.com/mesh-intelligence/icecat/pkg/types"
)

// tableView is the rendered form of a loaded table.
type tableView struct {
	Identifier       string               `json:"identifier" yaml:"identifier"`
	MetadataLocation string               `json:"metadata-location" yaml:"metadata-location"`
	Metadata         *types.TableMetadata `json:"metadata" yaml:"metadata"`
}

func viewOf(t *catalog.Table) tableView {
	return tableView{
		Identifier:       t.Identifier().String(),
		MetadataLocation: t.MetadataLocation(),
		Metadata:         t.Metadata(),
	}
}

func newTableCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage tables",
	}
	cmd.AddCommand(newTableListCmd(a))
	cmd.AddCommand(newTableCreateCmd(a))
	cmd.AddCommand(newTableShowCmd(a))
	cmd.AddCommand(newTableExistsCmd(a))
	cmd.AddCommand(newTableDropCmd(a))
	cmd.AddCommand(newTableRegisterCmd(a))
	cmd.AddCommand(newTableRenameCmd(a))
	cmd.AddCommand(newTableSetPropertyCmd(a))
	return cmd
}

func newTableListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <namespace>",
		Short: "List the tables in a namespace",
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

			ids, err := c.ListTables(cmd.Context(), ns)
			if err != nil {
				return err
			}
			names := make([]string, len(ids))
			for i, id := range ids {
				names[i] = id.String()
			}
			return a.render(names, func(w io.Writer) {
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
			})
		},
	}
}

func newTableCreateCmd(a *app) *cobra.Command {
	var (
		schemaFile string
		location   string
		properties []string
	)
	cmd := &cobra.Command{
		Use:   "create <table> --schema <file>",
		Short: "Create a table from a JSON schema",
		Example: `  icecat table create db.orders --schema orders.json
  icecat table create db.orders --schema orders.json --property owner=sales`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.Parse(args[0])
			if err != nil {
				return err
			}
			schema, err := readSchema(schemaFile)
			if err != nil {
				return err
			}
			props, err := parseProperties(properties)
			if err != nil {
				return err
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			opts := []catalog.BuilderOption{catalog.WithProperties(props)}
			if location != "" {
				opts = append(opts, catalog.WithLocation(location))
			}
			t, err := c.CreateTable(cmd.Context(), id, schema, opts...)
			if err != nil {
				return err
			}
			return a.render(viewOf(t), func(w io.Writer) {
				fmt.Fprintf(w, "created table %s\n", t.Identifier())
				fmt.Fprintf(w, "  metadata: %s\n", t.MetadataLocation())
			})
		},
	}
	cmd.Flags().StringVar(&schemaFile, "schema", "", "path to a JSON schema file")
	cmd.Flags().StringVar(&location, "location", "", "table location (default: derived from the warehouse)")
	cmd.Flags().StringArrayVar(&properties, "property", nil, "table property key=value (repeatable)")
	cmd.MarkFlagRequired("schema")
	return cmd
}

// readSchema parses a schema file such as
// {"fields":[{"id":1,"name":"id","type":"long","required":true}]}.
func readSchema(path string) (types.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Schema{}, fmt.Errorf("read schema: %w", err)
	}
	var schema types.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return types.Schema{}, fmt.Errorf("%w: parse schema %s: %w", errUsage, path, err)
	}
	if len(schema.Fields) == 0 {
		return types.Schema{}, fmt.Errorf("%w: schema %s has no fields", errUsage, path)
	}
	return schema, nil
}

func newTableShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <table>",
		Short: "Load a table and display its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.Parse(args[0])
			if err != nil {
				return err
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			t, err := c.LoadTable(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.render(viewOf(t), func(w io.Writer) { printTable(w, t) })
		},
	}
}

func printTable(w io.Writer, t *catalog.Table) {
	m := t.Metadata()
	fmt.Fprintf(w, "Table:     %s\n", t.Identifier())
	fmt.Fprintf(w, "UUID:      %s\n", m.TableUUID)
	fmt.Fprintf(w, "Format:    v%d\n", m.FormatVersion)
	fmt.Fprintf(w, "Location:  %s\n", m.Location)
	fmt.Fprintf(w, "Metadata:  %s\n", t.MetadataLocation())

	if schema, ok := m.CurrentSchema(); ok {
		fmt.Fprintf(w, "\nSchema %d:\n", schema.SchemaID)
		for _, f := range schema.Fields {
			req := "optional"
			if f.Required {
				req = "required"
			}
			fmt.Fprintf(w, "  %d: %s %s (%s)\n", f.ID, f.Name, f.Type, req)
		}
	}

	if snap, ok := m.CurrentSnapshot(); ok {
		fmt.Fprintf(w, "\nCurrent snapshot: %d (sequence %d)\n", snap.SnapshotID, snap.SequenceNumber)
	}
	fmt.Fprintf(w, "Snapshots: %d, previous metadata files: %d\n", len(m.Snapshots), len(m.MetadataLog))

	if len(m.Properties) > 0 {
		keys := make([]string, 0, len(m.Properties))
		for k := range m.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "\nProperties:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %s=%s\n", k, m.Properties[k])
		}
	}
}

func newTableExistsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <table>",
		Short: "Report whether a table exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.Parse(args[0])
			if err != nil {
				return err
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			exists, err := c.TableExists(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.render(map[string]bool{"exists": exists}, func(w io.Writer) {
				fmt.Fprintln(w, exists)
			})
		},
	}
}

func newTableDropCmd(a *app) *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "drop <table>",
		Short: "Drop a table's catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.Parse(args[0])
			if err != nil {
				return err
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			if purge {
				err = c.PurgeTable(cmd.Context(), id)
			} else {
				err = c.DropTable(cmd.Context(), id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "dropped table %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "ask the service to delete the table's files")
	return cmd
}

func newTableRegisterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register <table> <metadata-location>",
		Short: "Register an existing metadata file as a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.Parse(args[0])
			if err != nil {
				return err
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			t, err := c.RegisterTable(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			return a.render(viewOf(t), func(w io.Writer) {
				fmt.Fprintf(w, "registered table %s\n", t.Identifier())
				fmt.Fprintf(w, "  metadata: %s\n", t.MetadataLocation())
			})
		},
	}
}

func newTableRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <from> <to>",
		Short: "Rename a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := types.Parse(args[0])
			if err != nil {
				return err
			}
			to, err := types.Parse(args[1])
			if err != nil {
				return err
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			if _, err := c.RenameTable(cmd.Context(), from, to); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "renamed table %s to %s\n", from, to)
			return nil
		},
	}
}

func newTableSetPropertyCmd(a *app) *cobra.Command {
	var unset []string
	cmd := &cobra.Command{
		Use:   "set-property <table> [key=value...]",
		Short: "Commit a new table version with changed properties",
		Example: `  icecat table set-property db.orders owner=sales
  icecat table set-property db.orders --unset owner`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := types.Parse(args[0])
			if err != nil {
				return err
			}
			props, err := parseProperties(args[1:])
			if err != nil {
				return err
			}
			if len(props) == 0 && len(unset) == 0 {
				return fmt.Errorf("%w: nothing to change", errUsage)
			}

			c, closeCatalog, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer closeCatalog()

			t, err := c.LoadTable(cmd.Context(), id)
			if err != nil {
				return err
			}
			tx := t.NewTransaction()
			if len(props) > 0 {
				tx.SetProperties(props)
			}
			if len(unset) > 0 {
				tx.RemoveProperties(unset...)
			}
			t, err = tx.Commit(cmd.Context())
			if err != nil {
				return err
			}
			return a.render(viewOf(t), func(w io.Writer) {
				fmt.Fprintf(w, "committed %s\n", t.MetadataLocation())
			})
		},
	}
	cmd.Flags().StringSliceVar(&unset, "unset", nil, "property keys to remove")
	return cmd
}
