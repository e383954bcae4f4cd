package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"stormlightlabs.org/hoopscore/internal/core"
	"stormlightlabs.org/hoopscore/internal/db"
	"stormlightlabs.org/hoopscore/internal/query"
	"stormlightlabs.org/hoopscore/internal/savedqueries"
)

// QueriesCmd creates the queries command group: spec.md §6's
// create|get|list|update|delete over Saved Queries.
func QueriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Manage saved query IR documents",
	}
	cmd.AddCommand(QueriesCreateCmd())
	cmd.AddCommand(QueriesGetCmd())
	cmd.AddCommand(QueriesListCmd())
	cmd.AddCommand(QueriesUpdateCmd())
	cmd.AddCommand(QueriesDeleteCmd())
	return cmd
}

func QueriesCreateCmd() *cobra.Command {
	var name, irFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Save a new Query IR document",
		Long:  "Reads a Query IR JSON document from --ir-file (or stdin with '-') and saves it under --name.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return createSavedQuery(cmd, name, irFile)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name for the saved query (required)")
	cmd.Flags().StringVar(&irFile, "ir-file", "-", "Path to a Query IR JSON document, or '-' for stdin")
	return cmd
}

func QueriesGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a saved query by id",
		Args:  cobra.ExactArgs(1),
		RunE:  getSavedQuery,
	}
}

func QueriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every non-deleted saved query",
		RunE:  listSavedQueries,
	}
}

func QueriesUpdateCmd() *cobra.Command {
	var name, irFile string
	var expectedVersion int
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Replace a saved query's IR, subject to optimistic version check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateSavedQuery(cmd, args[0], name, irFile, expectedVersion)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New display name (required)")
	cmd.Flags().StringVar(&irFile, "ir-file", "-", "Path to a Query IR JSON document, or '-' for stdin")
	cmd.Flags().IntVar(&expectedVersion, "expected-version", 0, "Version the document must currently be at (0 skips the check)")
	return cmd
}

func QueriesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a saved query",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteSavedQuery,
	}
}

func buildSavedQueryStore(cmd *cobra.Command) (savedqueries.Store, *db.DB, error) {
	cfg, err := loadConfigForCmd(cmd)
	if err != nil {
		return nil, nil, err
	}

	// Caching is an optimization here, not the point of the command the way
	// it is for `cache ...` -- a Redis hiccup should never block saved-query
	// CRUD, so a connect failure just means "run uncached" (mustConnect=false).
	cacheClient, _ := newCacheClient(cfg, false)

	var database *db.DB
	if cfg.SavedQueries.Backend == "postgres" {
		database, err = db.Connect(cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		store, err := savedqueries.NewStore(cfg.SavedQueries, database.DB, cacheClient)
		if err != nil {
			database.Close()
			return nil, nil, err
		}
		return store, database, nil
	}

	store, err := savedqueries.NewStore(cfg.SavedQueries, nil, cacheClient)
	if err != nil {
		return nil, nil, err
	}
	return store, nil, nil
}

func readIR(irFile string) (query.Query, error) {
	var r io.Reader
	if irFile == "-" || irFile == "" {
		r = os.Stdin
	} else {
		f, err := os.Open(irFile)
		if err != nil {
			return query.Query{}, fmt.Errorf("opening IR file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var q query.Query
	if err := json.NewDecoder(r).Decode(&q); err != nil {
		return query.Query{}, fmt.Errorf("decoding Query IR: %w", err)
	}
	return q, nil
}

func printSavedQuery(sq *savedqueries.SavedQuery) {
	out, _ := json.MarshalIndent(sq, "", "  ")
	fmt.Println(string(out))
}

func createSavedQuery(cmd *cobra.Command, name, irFile string) error {
	if name == "" {
		return fmt.Errorf("--name is required")
	}
	ir, err := readIR(irFile)
	if err != nil {
		return err
	}

	store, database, err := buildSavedQueryStore(cmd)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	sq, err := store.Create(cmd.Context(), name, ir)
	if err != nil {
		return exitOnSavedQueryErr(err)
	}
	printSavedQuery(sq)
	return nil
}

func getSavedQuery(cmd *cobra.Command, args []string) error {
	store, database, err := buildSavedQueryStore(cmd)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	sq, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return exitOnSavedQueryErr(err)
	}
	printSavedQuery(sq)
	return nil
}

func listSavedQueries(cmd *cobra.Command, args []string) error {
	store, database, err := buildSavedQueryStore(cmd)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	sqs, err := store.List(cmd.Context())
	if err != nil {
		return exitOnSavedQueryErr(err)
	}
	out, _ := json.MarshalIndent(sqs, "", "  ")
	fmt.Println(string(out))
	return nil
}

func updateSavedQuery(cmd *cobra.Command, id, name, irFile string, expectedVersion int) error {
	if name == "" {
		return fmt.Errorf("--name is required")
	}
	ir, err := readIR(irFile)
	if err != nil {
		return err
	}

	store, database, err := buildSavedQueryStore(cmd)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	sq, err := store.Update(cmd.Context(), id, name, ir, expectedVersion)
	if err != nil {
		return exitOnSavedQueryErr(err)
	}
	printSavedQuery(sq)
	return nil
}

func deleteSavedQuery(cmd *cobra.Command, args []string) error {
	store, database, err := buildSavedQueryStore(cmd)
	if err != nil {
		return err
	}
	if database != nil {
		defer database.Close()
	}

	if err := store.Delete(cmd.Context(), args[0]); err != nil {
		return exitOnSavedQueryErr(err)
	}
	fmt.Println("ok")
	return nil
}

// exitOnSavedQueryErr maps not-found/conflict to distinct, scriptable
// exit codes (the saved-queries surface has no exit codes named in
// spec.md §6, so it follows the CLI's own 404/409-flavored convention).
func exitOnSavedQueryErr(err error) error {
	kind, ok := core.KindOf(err)
	if !ok {
		return err
	}
	switch kind {
	case core.SavedQueryNotFound:
		os.Exit(4)
	case core.SavedQueryConflict:
		os.Exit(9)
	}
	return err
}
