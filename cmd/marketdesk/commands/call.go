package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/marketdesk/internal/apiclient"
	"github.com/florianilch/marketdesk/internal/app"
	"github.com/florianilch/marketdesk/internal/session"
)

// Exit codes of the call command, one per error kind.
const (
	exitUnauthorized     = 2
	exitForbidden        = 3
	exitTransportFailure = 4
	exitServerRejected   = 5
)

func callCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "call the API with the stored client session",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "JSON request body, or - to read it from stdin",
			},
			&cli.BoolFlag{
				Name:  "no-auth",
				Usage: "send the request without credentials",
			},
		},
		Action: callAction,
	}
}

func callAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return fmt.Errorf("usage: %s call METHOD PATH", cmd.Root().Name)
	}

	body, err := requestBody(cmd.String("data"), cmd.Root().Reader)
	if err != nil {
		return err
	}

	cfg, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return fmt.Errorf("failed to create token store: %w", err)
	}
	client, err := app.NewClient(cfg, store, nil)
	if err != nil {
		return err
	}

	auth := apiclient.AuthAs(session.Client)
	if cmd.Bool("no-auth") {
		auth = apiclient.NoAuth
	}

	var out json.RawMessage
	err = client.Do(ctx, apiclient.Request{
		Method: cmd.Args().Get(0),
		Path:   cmd.Args().Get(1),
		Body:   body,
		Auth:   auth,
	}, &out)
	if err != nil {
		return exitError(err)
	}

	return printJSON(cmd.Root().Writer, out)
}

// requestBody parses the --data value. A nil result sends no body.
func requestBody(data string, stdin io.Reader) (any, error) {
	if data == "" {
		return nil, nil
	}
	if data == "-" {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		data = strings.TrimSpace(string(raw))
	}
	if !json.Valid([]byte(data)) {
		return nil, errors.New("request body must be valid JSON")
	}
	return json.RawMessage(data), nil
}

func printJSON(w io.Writer, payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, payload, "", "  "); err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

// exitError reports a failed call with an exit code per kind.
func exitError(err error) error {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	code := 1
	switch apiErr.Kind {
	case apiclient.KindUnauthorized:
		code = exitUnauthorized
	case apiclient.KindForbidden:
		code = exitForbidden
	case apiclient.KindTransportFailure:
		code = exitTransportFailure
	case apiclient.KindServerRejected:
		code = exitServerRejected
	}
	return cli.Exit(fmt.Sprintf("%s: %s", apiErr.Kind, apiErr.Message), code)
}
