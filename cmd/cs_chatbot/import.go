package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cs_chatbot/pkg/archive"
	"cs_chatbot/pkg/export"
	"cs_chatbot/pkg/session"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>...",
	Short: "Load CSV transcripts into the SQLite archive",
	Long: `Reads transcripts written by /export or the csv auto_save target and stores
them in the archive. A file named chat_<id>.csv keeps <id> as its session id;
any other name gets a new id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		for _, path := range args {
			id, n, err := importTranscript(cmd.Context(), store, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Imported %s as %s (%d turns)\n", path, id, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

// importTranscript parses a CSV export and saves it under the session id
// derived from its file name.
func importTranscript(ctx context.Context, store *archive.Store, path string) (string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}
	turns, err := export.ParseCSV(data)
	if err != nil {
		return "", 0, fmt.Errorf("%s: %w", path, err)
	}
	if len(turns) == 0 {
		return "", 0, fmt.Errorf("%s: transcript has no turns", path)
	}

	id := sessionIDFromPath(path)
	if err := store.Save(ctx, id, turns); err != nil {
		return "", 0, err
	}
	return id, len(turns), nil
}

func sessionIDFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if id, ok := strings.CutPrefix(base, "chat_"); ok && id != "" {
		return id
	}
	return session.NewID()
}
