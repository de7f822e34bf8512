package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soochol/connreg/internal/connreg"
	"github.com/soochol/connreg/internal/services"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDefaultsCmd(a *app) *cobra.Command {
	var table bool
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the built-in connection templates",
		Long: `Print the built-in connection templates as JSON, or as a table with --table.

Examples:
  connreg defaults | jq '.[].name'
  connreg defaults --table`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !table {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), connreg.DefaultConnectionsJSON())
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tENDPOINT\tDESCRIPTION")
			for _, tpl := range connreg.DefaultConnections() {
				fmt.Fprintf(tw, "%s\t%s:%d\t%s\n", tpl.Name, tpl.Host, tpl.Port, tpl.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&table, "table", false, "print a table instead of JSON")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored connections",
		Long: `List stored connections as JSON, ordered by name.

Examples:
  connreg list
  connreg list | jq '.[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *services.ConnectionService) error {
				conns, err := svc.List(cmd.Context())
				if err != nil {
					return err
				}
				if conns == nil {
					conns = []*connreg.Connection{}
				}
				return printJSON(cmd.OutOrStdout(), conns)
			})
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *services.ConnectionService) error {
				conn, err := svc.FindByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), conn)
			})
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		name string
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new connection",
		Long: `Register a new connection. Names must be unique.

Examples:
  connreg create --name primary-db --host db.internal --port 5432`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &connreg.ConnectionOptions{Name: name, Host: host}
			if cmd.Flags().Changed("port") {
				opts.Port = connreg.Ptr(port)
			}
			return a.withService(cmd.Context(), func(svc *services.ConnectionService) error {
				conn, err := svc.Create(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), conn)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "connection name")
	cmd.Flags().StringVar(&host, "host", "", "endpoint host")
	cmd.Flags().IntVar(&port, "port", 0, "endpoint port (0-65535)")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		name     string
		host     string
		port     int
		fromJSON string
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a connection",
		Long: `Change fields of a connection. Only fields that are passed are applied.

Fields come from flags, from a JSON object given with --from-json, or both;
flags win. Keys other than name, host and port in the JSON are ignored.
Use --from-json - to read the object from stdin.

Examples:
  connreg update conn-1234 --host db2.internal
  connreg update conn-1234 --name replica --port 5433
  connreg update conn-1234 --from-json '{"port": 5433}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &connreg.UpdateRequest{}
			flags := cmd.Flags()
			if flags.Changed("from-json") {
				picked, err := readUpdateJSON(cmd.InOrStdin(), fromJSON)
				if err != nil {
					return err
				}
				req = &picked
			}
			if flags.Changed("name") {
				req.Name = connreg.Ptr(name)
			}
			if flags.Changed("host") {
				req.Host = connreg.Ptr(host)
			}
			if flags.Changed("port") {
				req.Port = connreg.Ptr(port)
			}
			if req.IsEmpty() {
				return errors.New("nothing to update: pass --name, --host, --port or --from-json")
			}
			return a.withService(cmd.Context(), func(svc *services.ConnectionService) error {
				conn, err := svc.Update(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), conn)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new connection name")
	cmd.Flags().StringVar(&host, "host", "", "new endpoint host")
	cmd.Flags().IntVar(&port, "port", 0, "new endpoint port")
	cmd.Flags().StringVar(&fromJSON, "from-json", "", `JSON object with fields to change ("-" reads stdin)`)
	return cmd
}

// readUpdateJSON decodes a JSON object from src, or from stdin when src is
// "-", and keeps only the updatable fields.
func readUpdateJSON(stdin io.Reader, src string) (connreg.UpdateRequest, error) {
	r := io.Reader(strings.NewReader(src))
	if src == "-" {
		r = stdin
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return connreg.UpdateRequest{}, fmt.Errorf("decode --from-json: %w", err)
	}
	return connreg.PickUpdate(fields)
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd.Context(), func(svc *services.ConnectionService) error {
				if err := svc.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}
