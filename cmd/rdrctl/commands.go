package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rpattn/rdrstore/internal/dao"
	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/entities"
	"github.com/rpattn/rdrstore/internal/export"
	"github.com/rpattn/rdrstore/internal/ingestion"
)

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <entity> [field=value ...]",
		Short: "Fetch one page of records",
		Long: "Fetch one page of records. Arguments are search parameters: field names\n" +
			"filter (prefix values with lt, le, gt, ge or ne for comparisons) and\n" +
			"_count, _sort, _sort:desc, _token, _offset and _includeTotal control paging.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.dao(args[0])
			if err != nil {
				return err
			}
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			q, err := dao.ParseQueryParams(d.Entity().Catalog, params)
			if err != nil {
				return err
			}
			res, err := d.Query(ctx, q)
			if err != nil {
				return fmt.Errorf("%s: %w", dao.CategoryOf(err), err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func newExportCmd() *cobra.Command {
	var (
		format   string
		out      string
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "export <entity> [field=value ...]",
		Short: "Write every matching record to a CSV or XLSX file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.dao(args[0])
			if err != nil {
				return err
			}
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			q, err := dao.ParseQueryParams(d.Entity().Catalog, params)
			if err != nil {
				return err
			}

			svc := export.NewService(d, export.WithPageSize(pageSize), export.WithLogger(a.log))
			rows, err := writeExport(cmd.OutOrStdout(), out, func(w io.Writer) (int, error) {
				return svc.Write(ctx, q, f, w)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d rows\n", rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "Output format: csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().IntVar(&pageSize, "page-size", 1000, "Records fetched per page")
	return cmd
}

// writeExport runs write against path, or stdout when path is empty. A file
// that fails to close is reported as a failed export.
func writeExport(stdout io.Writer, path string, write func(io.Writer) (int, error)) (rows int, err error) {
	if path == "" {
		return write(stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return write(file)
}

func newSeedCmd() *cobra.Command {
	var headerRow int
	cmd := &cobra.Command{
		Use:     "seed <entity> <file.csv|file.xlsx>",
		Aliases: []string{"ingest"},
		Short:   "Load rows from a CSV or XLSX file",
		Long: "Load rows from a CSV or XLSX file whose header row names entity fields.\n" +
			"Blank integer id columns are filled with random identifiers.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.dao(args[0])
			if err != nil {
				return err
			}
			if err := a.store.EnsureSchema(ctx, d.Entity()); err != nil {
				return err
			}
			file, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer file.Close()

			req := ingestion.Request{FileName: args[1], Data: file}
			if cmd.Flags().Changed("header-row") {
				req.HeaderRowIndex = &headerRow
			}
			summary, err := ingestion.NewService(d, a.log).Ingest(ctx, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().IntVar(&headerRow, "header-row", 0, "Zero-based index of the header row")
	return cmd
}

func newInitSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema [entity ...]",
		Short: "Create missing entity and history tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			descs := a.registry.All()
			if len(args) > 0 {
				descs = descs[:0]
				for _, name := range args {
					e, err := a.registry.Lookup(name)
					if err != nil {
						return err
					}
					descs = append(descs, e)
				}
			}
			if err := a.store.EnsureSchema(ctx, descs...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready for %d entities\n", len(descs))
			return nil
		},
	}
}

func newEntitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List registered entities and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := entities.Default()
			for _, e := range reg.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (ids: %v)\n", e.Name, e.IDFields)
				for _, f := range e.Catalog.Fields() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-22s %s\n", f.Name, f.Type)
				}
			}
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var diff bool
	cmd := &cobra.Command{
		Use:   "history <entity> <key> [key ...]",
		Short: "List every stored version of a record",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			d, err := a.dao(args[0])
			if err != nil {
				return err
			}
			key := make([]any, len(args)-1)
			for i, raw := range args[1:] {
				key[i] = raw
			}
			versions, err := d.History(ctx, key...)
			if err != nil {
				return err
			}
			if !diff {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(versions)
			}
			var prev *domain.HistoryRecord
			for i := range versions {
				fmt.Fprint(cmd.OutOrStdout(), domain.DiffHistory(prev, &versions[i]))
				prev = &versions[i]
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&diff, "diff", false, "Print a diff between consecutive versions")
	return cmd
}
