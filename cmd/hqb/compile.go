package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/config"
	"github.com/TheColorRed/hasura-query-builder/internal/naming"
	"github.com/TheColorRed/hasura-query-builder/internal/queryfile"
)

type compileFlags struct {
	pretty   bool
	expanded bool
	validate bool
	json     bool
}

func newCompileCmd() *cobra.Command {
	var flags compileFlags
	cmd := &cobra.Command{
		Use:   "compile FILE",
		Short: "Print the GraphQL document a query file compiles to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			naming.SetDefault(naming.New(cfg.Naming, nil))
			defer naming.SetDefault(nil)

			body, err := compileFile(args[0], flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !flags.json {
				_, err = fmt.Fprintln(out, body.Query)
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(body)
		},
	}
	cmd.Flags().BoolVar(&flags.pretty, "pretty", false, "Indent the document")
	cmd.Flags().BoolVar(&flags.expanded, "expanded", false, "Keep the whitespace of the rendered fields")
	cmd.Flags().BoolVar(&flags.validate, "validate", false, "Parse the document before printing it")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the request body with its variables")
	return cmd
}

func compileFile(path string, flags compileFlags) (*compiler.QueryBody, error) {
	f, err := queryfile.Load(path)
	if err != nil {
		return nil, err
	}
	tables, err := f.Descriptors()
	if err != nil {
		return nil, err
	}
	opts, err := f.Options()
	if err != nil {
		return nil, err
	}
	opts.Pretty = flags.pretty
	opts.Expanded = flags.expanded
	opts.Validate = flags.validate
	return compiler.Compile(tables, opts)
}
