package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/chrisnestrud/PlayPalace11/tlstrust"
)

var errNoInput = errors.New("no input")

// printCertificate writes the details a user needs to decide on trust.
func printCertificate(w io.Writer, info *tlstrust.CertificateInfo) {
	fmt.Fprintf(w, "Host:         %s\n", info.Host)
	fmt.Fprintf(w, "Subject:      %s\n", info.CommonName)
	if len(info.SubjectAltNames) > 0 {
		fmt.Fprintf(w, "Alt names:    %s\n", strings.Join(info.SubjectAltNames, ", "))
	}
	fmt.Fprintf(w, "Issuer:       %s\n", info.Issuer)
	fmt.Fprintf(w, "Valid:        %s to %s\n", info.ValidFrom.Format(time.DateOnly), info.ValidTo.Format(time.DateOnly))
	if info.KeyAlgorithm != "" {
		fmt.Fprintf(w, "Key:          %s\n", info.KeyAlgorithm)
	}
	fmt.Fprintf(w, "SHA-256:      %s\n", info.FingerprintDisplay)
	if !info.MatchesHost {
		fmt.Fprintln(w, warning(w, fmt.Sprintf("WARNING: the certificate is not issued for %s.", info.Host)))
	}
	if info.Expired(time.Now()) {
		fmt.Fprintln(w, warning(w, "WARNING: the certificate is expired or not yet valid."))
	}
}

// terminalPrompt asks on out and takes the next line of in as the answer.
// Only "y" or "yes" approves.
func terminalPrompt(in *consoleInput, out io.Writer) tlstrust.PromptFunc {
	return func(info *tlstrust.CertificateInfo) bool {
		if info.PinnedFingerprint != "" {
			fmt.Fprintln(out, warning(out, "The server's certificate has CHANGED since you trusted it."))
			fmt.Fprintf(out, "Previously trusted: %s\n", tlstrust.DisplayFingerprint(info.PinnedFingerprint))
		} else {
			fmt.Fprintln(out, "The server presented a certificate that is not signed by a trusted authority.")
		}
		printCertificate(out, info)
		fmt.Fprint(out, "Trust this certificate? [y/N]: ")
		line, ok := in.ask()
		if !ok {
			fmt.Fprintln(out)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

// readPassword reads without echo when in is a terminal, otherwise one line.
func readPassword(in io.Reader, out io.Writer, prompt string) ([]byte, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, prompt)
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		return pw, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading password: %w", errNoInput)
		}
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// warning renders s in bold red when w is a color terminal.
func warning(w io.Writer, s string) string {
	o := termenv.NewOutput(w)
	return o.String(s).Foreground(o.Color("1")).Bold().String()
}
