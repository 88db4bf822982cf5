package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/chrisnestrud/PlayPalace11/tlstrust"
)

var inspectTimeout time.Duration

var inspectCmd = &cobra.Command{
	Use:   "inspect <wss-url>",
	Short: "Show the certificate a server presents, without trusting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := tlstrust.NewInspector(inspectTimeout).Inspect(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printCertificate(cmd.OutOrStdout(), info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 10*time.Second, "TLS handshake timeout")
}
