package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chrisnestrud/PlayPalace11/tlstrust"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Inspect and manage pinned server certificates",
}

var trustShowCmd = &cobra.Command{
	Use:   "show <server-id>",
	Short: "Show the pinned certificate for a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		rec, ok, err := store.Trust().Get(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !ok {
			fmt.Fprintln(out, "No certificate pinned for this server.")
			return nil
		}
		fmt.Fprintf(out, "Pinned:       %s\n", rec.CreatedAt.Local().Format(time.RFC1123))
		info, err := tlstrust.ParseCertificatePEM(rec.Host, rec.PEM)
		if err != nil {
			fmt.Fprintf(out, "Host:         %s\n", rec.Host)
			fmt.Fprintf(out, "SHA-256:      %s\n", tlstrust.DisplayFingerprint(rec.FingerprintHex))
			return nil
		}
		printCertificate(out, info)
		return nil
	},
}

var trustClearCmd = &cobra.Command{
	Use:   "clear <server-id>",
	Short: "Forget the pinned certificate; the next connection prompts again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		if err := store.Trust().Clear(args[0]); err != nil {
			return err
		}
		logger.Warn("trust record cleared", "server_id", args[0])
		fmt.Fprintln(cmd.OutOrStdout(), "Pinned certificate cleared.")
		return nil
	},
}

var trustRepinCmd = &cobra.Command{
	Use:   "repin <server-id>",
	Short: "Fetch the server's current certificate and replace the pin after confirmation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		srv, err := store.Server(args[0])
		if err != nil {
			return err
		}
		in := newConsoleInput(cmd.InOrStdin())
		defer in.Close()
		prompt := terminalPrompt(in, cmd.OutOrStdout())
		connector := tlstrust.NewConnector(store.Trust(), prompt, tlstrust.WithLogger(logger))
		ok, err := connector.Repin(cmd.Context(), srv.ID, srv.URL)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Pin unchanged.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Certificate pinned.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustShowCmd, trustClearCmd, trustRepinCmd)
}
