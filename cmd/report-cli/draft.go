package main

import (
	"fmt"
	"io"

	"github.com/fpang/litter-report/internal/app"
	"github.com/fpang/litter-report/internal/draft"
	"github.com/spf13/cobra"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Inspect or clear the persisted draft",
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted draft",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openDrafts(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		d, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, d)
	},
}

var draftClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted draft",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openDrafts(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		if err := store.Purge(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Draft cleared")
		return nil
	},
}

var draftPurgeExpiredCmd = &cobra.Command{
	Use:   "purge-expired",
	Short: "Remove expired drafts from the SQLite store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		backend, err := app.NewBuilder(cfg, nil).DraftBackend(cmd.Context())
		if err != nil {
			return err
		}
		db, ok := backend.(*draft.SQLite)
		if !ok {
			return fmt.Errorf("purge-expired needs the sqlite backend, not %s", cfg.Drafts.Backend)
		}
		defer db.Close()
		n, err := db.PurgeExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired drafts\n", n)
		return nil
	},
}

func init() {
	draftCmd.AddCommand(draftShowCmd, draftClearCmd, draftPurgeExpiredCmd)
}

func openDrafts(cmd *cobra.Command) (*draft.Store, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	backend, err := app.NewBuilder(cfg, nil).DraftBackend(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	if c, ok := backend.(io.Closer); ok {
		closeFn = func() { c.Close() }
	}
	return draft.New(backend, draft.WithKey(cfg.Drafts.Key)), closeFn, nil
}
