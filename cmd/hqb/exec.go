package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/TheColorRed/hasura-query-builder/internal/compiler"
	"github.com/TheColorRed/hasura-query-builder/internal/paginator"
	"github.com/TheColorRed/hasura-query-builder/internal/queryfile"
	"github.com/TheColorRed/hasura-query-builder/internal/table"
)

type execFlags struct {
	raw        string
	vars       map[string]string
	connection string
	role       string
	page       int
	pageToken  string
	perPage    int
}

// pageOutput is printed for paginated reads.
type pageOutput struct {
	Rows       any    `json:"rows"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
	Token      string `json:"token"`
}

func newExecCmd() *cobra.Command {
	var flags execFlags
	cmd := &cobra.Command{
		Use:   "exec [FILE]",
		Short: "Run a query file, or a raw document with --raw",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (flags.raw == "") == (len(args) == 0) {
				return errors.New("pass either a query file or --raw")
			}
			a, cfg, err := start(cmd)
			if err != nil {
				return err
			}
			defer stop(a)

			out := cmd.OutOrStdout()
			if flags.raw != "" {
				vars, err := parseVars(flags.vars)
				if err != nil {
					return err
				}
				data, err := a.Client().RawFile(cmd.Context(), flags.raw, vars, compiler.QueryOptions{
					Connection: flags.connection,
					Role:       flags.role,
				})
				if err != nil {
					return err
				}
				return printJSON(out, data)
			}

			f, err := queryfile.Load(args[0])
			if err != nil {
				return err
			}
			if f.Streaming() {
				return errors.New("query file streams; use hqb watch")
			}
			if flags.page > 0 || flags.pageToken != "" {
				if flags.perPage <= 0 {
					flags.perPage = cfg.Client.PageSize
				}
				return execPage(cmd, a.Client(), f, flags)
			}

			body, err := f.Compile()
			if err != nil {
				return err
			}
			data, err := a.Client().Raw(cmd.Context(), body)
			if err != nil {
				return err
			}
			return printJSON(out, data)
		},
	}
	cmd.Flags().StringVar(&flags.raw, "raw", "", "GraphQL document file or http(s) URL")
	cmd.Flags().StringToStringVar(&flags.vars, "var", nil, "Variables for --raw (name=json,...)")
	cmd.Flags().StringVar(&flags.connection, "connection", "", "Connection used by --raw")
	cmd.Flags().StringVar(&flags.role, "role", "", "x-hasura-role used by --raw")
	cmd.Flags().IntVar(&flags.page, "page", 0, "Fetch one page of a single select")
	cmd.Flags().StringVar(&flags.pageToken, "page-token", "", "Resume at the page a previous run printed")
	cmd.Flags().IntVar(&flags.perPage, "per-page", 0, "Rows per page (default client.page_size)")
	return cmd
}

func execPage(cmd *cobra.Command, src paginator.Source, f *queryfile.File, flags execFlags) error {
	queries, err := f.Queries()
	if err != nil {
		return err
	}
	if len(queries) != 1 || queries[0].Table().Kind() != table.KindSelect {
		return errors.New("pagination needs a file with a single select")
	}

	var p *paginator.Paginator
	if flags.pageToken != "" {
		if p, err = paginator.Resume(src, queries[0], flags.pageToken); err != nil {
			return err
		}
	} else {
		p = paginator.New(src, queries[0], flags.perPage)
	}

	var page *paginator.Page
	if flags.page > 0 {
		page, err = p.Page(cmd.Context(), flags.page)
	} else {
		page, err = p.Current(cmd.Context())
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), pageOutput{
		Rows:       page.Rows,
		Page:       page.Current,
		PerPage:    page.PerPage,
		Total:      page.Total,
		TotalPages: page.TotalPages,
		Token:      page.Token,
	})
}

// parseVars decodes each value as JSON, falling back to the raw string.
func parseVars(raw map[string]string) (map[string]any, error) {
	vars := make(map[string]any, len(raw))
	for name, value := range raw {
		if name == "" {
			return nil, fmt.Errorf("variable name cannot be empty")
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		vars[name] = decoded
	}
	return vars, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
