package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chrisnestrud/PlayPalace11/packet"
	"github.com/chrisnestrud/PlayPalace11/profile"
	"github.com/chrisnestrud/PlayPalace11/session"
	"github.com/chrisnestrud/PlayPalace11/tlstrust"
)

const consoleHelp = `Type a line to chat with the local table. Commands:
  /global <text>     chat globally
  /local <text>      chat locally
  /ping              measure round-trip time
  /online            list online users
  /online_games      list online users and their games
  /select <n>        choose item n of the current menu
  /key <name>        send a key press to the current menu
  /escape            back out of the current menu
  /quit              disconnect and exit
Any other /command is sent to the server.`

var connectCmd = &cobra.Command{
	Use:   "connect [identity-id]",
	Short: "Log in with an identity and open an interactive session",
	Long: `Logs in with a stored identity and reads lines from stdin until /quit
or end of input. When the profile holds exactly one identity the id may
be omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	store, closeFn, err := openProfile()
	if err != nil {
		return err
	}
	defer closeFn()

	identityID, err := pickIdentity(store, args)
	if err != nil {
		return err
	}
	creds, err := store.Credentials(identityID)
	if err != nil {
		return err
	}
	defer creds.Destroy()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := newConsoleInput(cmd.InOrStdin())
	defer in.Close()
	context.AfterFunc(ctx, in.Close)
	out := cmd.OutOrStdout()
	connector := tlstrust.NewConnector(store.Trust(), terminalPrompt(in, out), tlstrust.WithLogger(logger))
	ctrl := session.New(newConsoleHandler(out), &session.TransportOpener{
		Connector:       connector,
		Validator:       packet.NewValidator(),
		ProtocolVersion: cfg.ProtocolVersion,
		DebugPackets:    cfg.DebugPackets,
		Logger:          logger,
	}, connector,
		session.WithLogger(logger),
		session.WithAuthorizeTimeout(cfg.AuthorizeTimeout),
		session.WithJoinTimeout(cfg.JoinTimeout),
		session.WithClientOptions(store),
	)
	go ctrl.Run(ctx)
	defer ctrl.Close()
	// Runs before ctrl.Close so a reconnect stuck at a prompt is released.
	defer in.Close()

	fmt.Fprintf(out, "Connecting to %s as %s...\n", creds.URL, creds.Username)
	if err := ctrl.AttemptConnect(ctx, creds); err != nil {
		switch {
		case errors.Is(err, session.ErrConnectCanceled):
			fmt.Fprintln(out, "Connection canceled.")
			return nil
		case errors.Is(err, tlstrust.ErrFingerprintMismatch):
			return fmt.Errorf("%w\nThe server's certificate no longer matches the pinned one. "+
				"If you expected this, run: palace trust repin %s", err, creds.ServerID)
		}
		return err
	}
	fmt.Fprintln(out, "Type /help for commands.")
	return inputLoop(ctx, ctrl, in, out)
}

type lineHandler interface {
	HandleUserInput(line string) error
}

// inputLoop feeds lines to the controller until /quit, EOF or ctx ends.
func inputLoop(ctx context.Context, ctrl lineHandler, in *consoleInput, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-in.EOF():
			return nil
		case line := <-in.Lines():
			switch strings.TrimSpace(line) {
			case "/quit", "/exit":
				return nil
			case "/help", "/?":
				fmt.Fprintln(out, consoleHelp)
				continue
			}
			if err := ctrl.HandleUserInput(line); err != nil {
				fmt.Fprintf(out, "* %v\n", err)
			}
		}
	}
}

func pickIdentity(store *profile.Store, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	idents, err := store.Identities("")
	if err != nil {
		return "", err
	}
	switch len(idents) {
	case 0:
		return "", errors.New("no identities; add one with: palace identity add <server-id> <username>")
	case 1:
		return idents[0].ID, nil
	default:
		return "", errors.New("several identities stored; pass an identity id (see palace identity list)")
	}
}
