package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Show and change the client options sent to a server after login",
}

var optionsShowCmd = &cobra.Command{
	Use:   "show <server-id>",
	Short: "Print the effective client options as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		opts, err := store.ClientOptions(args[0])
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(opts)
		if err != nil {
			return err
		}
		cmd.OutOrStdout().Write(out)
		return nil
	},
}

var optionsSetCmd = &cobra.Command{
	Use:   "set <server-id> <path> <value>",
	Short: "Set one option, e.g. social.chat_input_language English",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := parseOptionValue(args[2])
		if err != nil {
			return err
		}
		store, closeFn, err := openProfile()
		if err != nil {
			return err
		}
		defer closeFn()

		if _, err := store.Server(args[0]); err != nil {
			return fmt.Errorf("unknown server %s: %w", args[0], err)
		}
		if err := store.SetClientOption(args[0], args[1], value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[1], value)
		return nil
	},
}

// parseOptionValue reads a YAML scalar so that numbers and booleans keep
// their types.
func parseOptionValue(s string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("invalid value %q: %w", s, err)
	}
	if v == nil {
		return s, nil
	}
	return v, nil
}

func init() {
	rootCmd.AddCommand(optionsCmd)
	optionsCmd.AddCommand(optionsShowCmd, optionsSetCmd)
}
