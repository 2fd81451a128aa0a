package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecmem"
	"github.com/hupe1980/vecmem/backend"
	"github.com/hupe1980/vecmem/blobstore"
	"github.com/hupe1980/vecmem/snapshot"
)

type transferFlags struct {
	dir            string
	compression    string
	userID         string
	conversationID string
}

func (f *transferFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dir, "dir", ".", "directory holding the snapshots")
	cmd.Flags().StringVar(&f.userID, "user", "", "restrict to a user")
	cmd.Flags().StringVar(&f.conversationID, "conversation", "", "restrict to a conversation")
}

func (f *transferFlags) open(cmd *cobra.Command) (*vecmem.DB, blobstore.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := blobstore.NewLocalStore(f.dir)
	if err != nil {
		return nil, nil, err
	}

	db, err := vecmem.Open(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, store, nil
}

func (f *transferFlags) tenant() backend.Tenant {
	return backend.Tenant{UserID: f.userID, ConversationID: f.conversationID}
}

func newExportCmd() *cobra.Command {
	var f transferFlags

	cmd := &cobra.Command{
		Use:   "export NAME",
		Short: "Write the records of the configured engine to a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := snapshot.ParseCompression(f.compression)
			if err != nil {
				return err
			}

			db, store, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			scoped := db.ForTenant(f.tenant())
			if err := scoped.Save(cmd.Context(), store, args[0], func(o *snapshot.Options) { o.Compression = c }); err != nil {
				return err
			}

			n, err := scoped.Count(cmd.Context(), nil)
			if err != nil {
				return err
			}
			printCheck(cmd.OutOrStdout(), true, "exported %d records to %s", n, args[0])
			return nil
		},
	}

	f.register(cmd)
	cmd.Flags().StringVar(&f.compression, "compression", snapshot.Zstd.String(), "none, zstd or lz4")
	return cmd
}

func newImportCmd() *cobra.Command {
	var f transferFlags

	cmd := &cobra.Command{
		Use:   "import NAME",
		Short: "Replace the records of the configured engine with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, store, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			scoped := db.ForTenant(f.tenant())
			if err := scoped.Restore(cmd.Context(), store, args[0]); err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}

			n, err := scoped.Count(cmd.Context(), nil)
			if err != nil {
				return err
			}
			printCheck(cmd.OutOrStdout(), true, "imported %d records from %s", n, args[0])
			return nil
		},
	}

	f.register(cmd)
	return cmd
}
