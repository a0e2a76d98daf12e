package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jamesprial/gqlauth/internal/graphql"
	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [document]",
		Short: "Execute one GraphQL operation and print its data",
		Long: `Sends a single operation through the transport, refreshing the credential
if the endpoint reports it expired, and prints the "data" member as JSON.
The document is read from the argument, or from stdin when omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runQuery,
	}
	cmd.Flags().String("variables", "", "JSON object of variables")
	cmd.Flags().String("url", "", "Endpoint URL (overrides config)")
	cmd.Flags().String("credential", "", "Initial credential (overrides config)")
	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	document, err := readDocument(cmd, args)
	if err != nil {
		return err
	}

	var variables map[string]any
	if raw, _ := cmd.Flags().GetString("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &variables); err != nil {
			return fmt.Errorf("parse variables JSON: %w", err)
		}
	}

	cfg, logger := loadConfig(cmd)
	if url, _ := cmd.Flags().GetString("url"); url != "" {
		cfg.GraphQL.URL = url
	}
	if credential, _ := cmd.Flags().GetString("credential"); credential != "" {
		cfg.GraphQL.Credential = credential
	}
	// A one-shot command has no scrape endpoint.
	cfg.Metrics.Enabled = false

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.transport.ExecuteOperation(cmd.Context(), graphql.Operation{
		Name:      graphql.OperationName(document),
		Query:     document,
		Variables: variables,
	})
	if err != nil {
		env := graphql.Envelope(err)
		logger.Error("query failed", "text_code", env.TextCode, "code", env.Code, "err", err)
		return err
	}

	out := map[string]any{"data": resp.Data()}
	if errs := resp.Errors(); len(errs) > 0 {
		out["errors"] = errs
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if errs := resp.Errors(); len(errs) > 0 {
		return &graphql.QueryError{Errors: errs}
	}
	return nil
}

// readDocument returns the operation text from args or, failing that, stdin.
func readDocument(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			return "", errors.New("no document given: pass it as an argument or on stdin")
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	document := strings.TrimSpace(string(data))
	if document == "" {
		return "", errors.New("no document given: pass it as an argument or on stdin")
	}
	return document, nil
}
