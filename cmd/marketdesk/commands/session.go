package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/marketdesk/internal/session"
	"github.com/florianilch/marketdesk/internal/tokenstore"
)

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "manage the stored client session",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "store a credential pair (prompts when no flags are given)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "access-token", Usage: "access token"},
					&cli.StringFlag{Name: "refresh-token", Usage: "refresh token"},
				},
				Action: sessionImportAction,
			},
			{
				Name:   "show",
				Usage:  "describe the stored session without revealing it",
				Action: sessionShowAction,
			},
			{
				Name:   "clear",
				Usage:  "delete the stored session",
				Action: sessionClearAction,
			},
		},
	}
}

func openStore(ctx context.Context, cmd *cli.Command) (tokenstore.TokenStore, func(context.Context) error, error) {
	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, fmt.Errorf("failed to create token store: %w", err)
	}
	return store, shutdown, nil
}

func sessionImportAction(ctx context.Context, cmd *cli.Command) error {
	store, shutdown, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	creds := session.Credentials{
		AccessToken:  cmd.String("access-token"),
		RefreshToken: cmd.String("refresh-token"),
	}
	if creds.Empty() {
		if creds, err = promptCredentials(os.Stdin, cmd.Root().ErrWriter); err != nil {
			return err
		}
	}

	if err := importSession(ctx, store, creds); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.Root().Writer, "session stored")
	return nil
}

// promptCredentials asks for both tokens without echo on a terminal.
// Otherwise it reads a JSON pair or a bare refresh token from in.
func promptCredentials(in *os.File, prompt io.Writer) (session.Credentials, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return readCredentials(in)
	}

	read := func(label string) (string, error) {
		_, _ = fmt.Fprintf(prompt, "%s: ", label)
		value, err := term.ReadPassword(fd)
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", label, err)
		}
		return strings.TrimSpace(string(value)), nil
	}

	access, err := read("Access token (optional)")
	if err != nil {
		return session.Credentials{}, err
	}
	refresh, err := read("Refresh token")
	if err != nil {
		return session.Credentials{}, err
	}
	return session.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

func readCredentials(in io.Reader) (session.Credentials, error) {
	raw, err := io.ReadAll(bufio.NewReader(in))
	if err != nil {
		return session.Credentials{}, fmt.Errorf("reading credentials: %w", err)
	}
	return session.DecodeCredentials(string(raw))
}

func importSession(ctx context.Context, store tokenstore.TokenStore, creds session.Credentials) error {
	if creds.Empty() {
		return errors.New("no credentials given")
	}
	encoded, err := session.EncodeCredentials(creds)
	if err != nil {
		return err
	}
	if err := store.Write(ctx, encoded); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

func sessionShowAction(ctx context.Context, cmd *cli.Command) error {
	store, shutdown, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	return describeSession(ctx, store, cmd.Root().Writer)
}

func describeSession(ctx context.Context, store tokenstore.TokenStore, w io.Writer) error {
	raw, err := store.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		_, _ = fmt.Fprintln(w, "no session stored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading session: %w", err)
	}

	creds, err := session.DecodeCredentials(raw)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "access token:  %s\n", mask(creds.AccessToken))
	_, _ = fmt.Fprintf(w, "refresh token: %s\n", mask(creds.RefreshToken))
	return nil
}

// mask shows only enough of a token to tell two apart.
func mask(token string) string {
	switch {
	case token == "":
		return "(none)"
	case len(token) <= 8:
		return strings.Repeat("*", len(token))
	default:
		return fmt.Sprintf("%s... (%d chars)", token[:4], len(token))
	}
}

func sessionClearAction(ctx context.Context, cmd *cli.Command) error {
	store, shutdown, err := openStore(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := store.Delete(ctx); err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		return fmt.Errorf("clearing session: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.Root().Writer, "session cleared")
	return nil
}
