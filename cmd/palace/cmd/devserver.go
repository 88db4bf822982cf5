package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/chrisnestrud/PlayPalace11/internal/devserver"
	"github.com/chrisnestrud/PlayPalace11/tlstrust"
)

var (
	devPort    int
	devPlain   bool
	devTLSCert string
	devTLSKey  string
	devMOTD    string
	devHosts   []string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local development game server",
	Long: `Starts a small server that speaks the client protocol: it accepts any
login, answers pings, relays chat and understands /menu, /input, /restart
and /quit. Without --tls-cert it serves a self-signed certificate, which
exercises the client's trust-on-first-use prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := devserver.New(devserver.WithLogger(logger), devserver.WithMOTD(devMOTD))

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Mount("/", srv.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", devPort),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		out := cmd.OutOrStdout()

		scheme := "ws"
		if !devPlain {
			scheme = "wss"
			var cert tls.Certificate
			var err error
			if devTLSCert != "" && devTLSKey != "" {
				cert, err = tls.LoadX509KeyPair(devTLSCert, devTLSKey)
				if err != nil {
					return fmt.Errorf("failed to load TLS key pair: %w", err)
				}
			} else {
				cert, err = devserver.SelfSignedCertificate(devHosts...)
				if err != nil {
					return fmt.Errorf("failed to generate self-signed certificate: %w", err)
				}
				fmt.Fprintf(out, "Using self-signed certificate %s\n", tlstrust.DisplayFingerprint(tlstrust.Fingerprint(cert.Leaf)))
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if devPlain {
				err = server.ListenAndServe()
			} else {
				err = server.ListenAndServeTLS("", "")
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner(out)
		fmt.Fprintf(out, "Listening on %s://localhost:%d/\n", scheme, devPort)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			srv.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().IntVarP(&devPort, "port", "p", 8000, "Port to listen on")
	devserverCmd.Flags().BoolVar(&devPlain, "plain", false, "Serve ws:// without TLS")
	devserverCmd.Flags().StringVar(&devTLSCert, "tls-cert", "", "Path to TLS certificate file")
	devserverCmd.Flags().StringVar(&devTLSKey, "tls-key", "", "Path to TLS key file")
	devserverCmd.Flags().StringVar(&devMOTD, "motd", "Welcome to the PlayPalace development server.", "Message spoken after login")
	devserverCmd.Flags().StringSliceVar(&devHosts, "host", []string{"localhost", "127.0.0.1"}, "Names for the self-signed certificate")
}
