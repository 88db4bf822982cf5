package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var identityServer string

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage login identities",
}

var identityAddCmd = &cobra.Command{
	Use:   "add <server-id> <username>",
	Short: "Add a login for a server",
	Long: `Adds a login for a server. The password is read from the terminal
without echo, or as one line from stdin when stdin is not a terminal.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		if _, err := store.Server(args[0]); err != nil {
			return fmt.Errorf("unknown server %s: %w", args[0], err)
		}
		password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), "Password: ")
		if err != nil {
			return err
		}
		ident, err := store.AddIdentity(args[0], args[1], password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added identity %s (%s)\n", ident.Username, ident.ID)
		return nil
	},
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		idents, err := store.Identities(identityServer)
		if err != nil {
			return err
		}
		if len(idents) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No identities.")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tSERVER")
		for _, id := range idents {
			fmt.Fprintf(w, "%s\t%s\t%s\n", id.ID, id.Username, id.ServerID)
		}
		return w.Flush()
	},
}

var identityRemoveCmd = &cobra.Command{
	Use:   "remove <identity-id>",
	Short: "Remove an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := store.RemoveIdentity(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Identity removed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityAddCmd, identityListCmd, identityRemoveCmd)
	identityListCmd.Flags().StringVar(&identityServer, "server", "", "Only list identities for this server id")
}
