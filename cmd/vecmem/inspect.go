package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecmem/blobstore"
	"github.com/hupe1980/vecmem/snapshot"
)

func newInspectCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "inspect NAME...",
		Short: "Verify snapshot files and print their headers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := blobstore.NewLocalStore(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var failed int
			for _, name := range args {
				info, err := snapshot.Inspect(cmd.Context(), store, name)
				if err != nil {
					failed++
					printCheck(out, false, "%s: %v", name, err)
					continue
				}
				printCheck(out, true, "%s: v%d codec=%s compression=%s raw=%d stored=%d ratio=%.2f crc32c=%08x",
					name, info.Version, info.Codec, info.Compression, info.RawSize, info.StoredSize, info.Ratio(), info.Checksum)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d snapshots failed verification", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "directory holding the snapshots")
	return cmd
}
