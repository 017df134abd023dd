package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/nartool/internal/catalog"
)

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Query the archive catalog",
	Long: `Query executes SQL against the catalog database, lists its tables, or
prints the statements that define them.

Example:
  nartool query "SELECT path, original_size FROM entries WHERE path LIKE 'maps/%'"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		listTables, err := cmd.Flags().GetBool("tables")
		if err != nil {
			return fmt.Errorf("failed to get tables flag: %w", err)
		}
		showSchema, err := cmd.Flags().GetBool("schema")
		if err != nil {
			return fmt.Errorf("failed to get schema flag: %w", err)
		}

		slog.Debug("Query parameters",
			"catalog", cfg.Catalog,
			"list-tables", listTables,
			"schema", showSchema)

		c, err := catalog.Open(ctx, catalog.DefaultOptions(cfg.Catalog))
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer c.Close()

		if listTables {
			tables, err := c.Tables(ctx)
			if err != nil {
				return fmt.Errorf("listing tables: %w", err)
			}
			fmt.Println("Available tables:")
			for _, name := range tables {
				fmt.Printf("  %s\n", name)
			}
			return nil
		}

		if showSchema {
			ddl, err := c.Schema(ctx)
			if err != nil {
				return fmt.Errorf("reading schema: %w", err)
			}
			fmt.Println(ddl)
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("no query provided, use --tables to list tables or --schema to show the schema")
		}

		query := args[0]
		slog.Debug("Executing SQL query", "query", query)

		rows, err := c.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("getting column names: %w", err)
		}

		fmt.Println(strings.Join(columns, "\t"))
		seps := make([]string, len(columns))
		for i, col := range columns {
			seps[i] = strings.Repeat("-", len(col))
		}
		fmt.Println(strings.Join(seps, "\t"))

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		count := 0
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return fmt.Errorf("scanning row: %w", err)
			}
			cells := make([]string, len(values))
			for i, val := range values {
				switch v := val.(type) {
				case nil:
					cells[i] = "NULL"
				case []byte:
					cells[i] = string(v)
				default:
					cells[i] = fmt.Sprint(v)
				}
			}
			fmt.Println(strings.Join(cells, "\t"))
			count++
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating rows: %w", err)
		}

		slog.Debug("Query finished", "rows", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Bool("tables", false, "List available tables")
	queryCmd.Flags().Bool("schema", false, "Show the catalog schema")
}
