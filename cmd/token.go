package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/otherjamesbrown/mentionkit/credentials"
)

// TokenStatus is the output of token status.
type TokenStatus struct {
	Server string             `json:"server" yaml:"server"`
	Stored bool               `json:"stored" yaml:"stored"`
	Source credentials.Source `json:"source,omitempty" yaml:"source,omitempty"`
	Masked string             `json:"masked,omitempty" yaml:"masked,omitempty"`
}

// NewTokenCommand creates the token command group.
func NewTokenCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the API token for the mention service",
		Long: `Manage the bearer token sent to the gRPC mention service.

Tokens are kept in the system keyring, one per server address. Where no
keyring is available and MENTIONKIT_TOKEN_PASSPHRASE is set, they are
kept in an encrypted tokens.enc file in the config directory instead.
MENTIONKIT_API_TOKEN overrides the stored token when set.

Examples:
  mentionkit token set
  mentionkit token set --server api.example.com:443
  mentionkit token status
  mentionkit token clear`,
	}

	cmd.AddCommand(newTokenSetCommand(deps))
	cmd.AddCommand(newTokenClearCommand(deps))
	cmd.AddCommand(newTokenStatusCommand(deps))
	return cmd
}

// tokenServer returns --server or the configured server address.
func tokenServer(deps *Deps, server string) (string, error) {
	if server != "" {
		return server, nil
	}
	cfg, err := deps.LoadConfig()
	if err != nil {
		return "", err
	}
	return cfg.ServerAddress, nil
}

func newTokenSetCommand(deps *Deps) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store a token (read from the terminal without echo)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := tokenServer(deps, server)
			if err != nil {
				return err
			}

			token, err := readToken(cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("reading token: %w", err)
			}

			if err := deps.Credentials.Save(server, token); err != nil {
				return fmt.Errorf("saving token: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Token stored for %s: %s\n", server, credentials.MaskToken(token))
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server address (default: configured server)")
	return cmd
}

// readToken reads a hidden token from a terminal, or one line from in.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "API token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newTokenClearCommand(deps *Deps) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := tokenServer(deps, server)
			if err != nil {
				return err
			}
			if err := deps.Credentials.Delete(server); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token cleared for %s\n", server)
			if os.Getenv(credentials.EnvToken) != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Note: %s is still set in the environment.\n", credentials.EnvToken)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server address (default: configured server)")
	return cmd
}

func newTokenStatusCommand(deps *Deps) *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which token is in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}
			if server == "" {
				server = cfg.ServerAddress
			}

			status := TokenStatus{Server: server}
			cred, err := deps.Credentials.Active(server)
			switch {
			case errors.Is(err, credentials.ErrNoCredentials):
			case err != nil:
				return err
			default:
				status.Stored = true
				status.Source = cred.Source
				status.Masked = credentials.MaskToken(cred.Token)
			}

			return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), status, func(w io.Writer) error {
				if !status.Stored {
					_, err := fmt.Fprintf(w, "No token for %s. Run 'mentionkit token set'.\n", status.Server)
					return err
				}
				_, err := fmt.Fprintf(w, "Server: %s\nSource: %s\nToken:  %s\n", status.Server, status.Source, status.Masked)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "server address (default: configured server)")
	return cmd
}
