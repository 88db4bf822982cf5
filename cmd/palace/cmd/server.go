package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the server book",
}

var serverAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a server (ws:// or wss:// URL)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		srv, err := store.AddServer(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added server %s (%s)\n", srv.Name, srv.ID)
		return nil
	},
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		servers, err := store.Servers()
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No servers. Add one with: palace server add <name> <url>")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tURL")
		for _, s := range servers {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.URL)
		}
		return w.Flush()
	},
}

var serverRemoveCmd = &cobra.Command{
	Use:   "remove <server-id>",
	Short: "Remove a server with its identities, options and pinned certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := store.RemoveServer(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Server removed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverAddCmd, serverListCmd, serverRemoveCmd)
}
