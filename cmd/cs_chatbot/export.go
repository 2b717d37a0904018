package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cs_chatbot/pkg/archive"
	"cs_chatbot/pkg/export"
)

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "List archived sessions or export one as CSV/JSON",
	Long: `Without arguments, lists the sessions stored in the SQLite archive
(auto_save_target "sqlite"). With a session id, writes its transcript, or
removes it from the archive when --delete is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		remove, _ := cmd.Flags().GetBool("delete")

		store, err := archive.Open(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if len(args) == 0 {
			if remove {
				return fmt.Errorf("--delete needs a session id")
			}
			sessions, err := store.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No archived sessions found.")
				return nil
			}
			fmt.Fprintln(out, "Archived sessions:")
			for _, s := range sessions {
				fmt.Fprintf(out, "- %s  %s  %d turns\n", s.ID, s.SavedAt.Local().Format("2006-01-02 15:04:05"), s.Turns)
			}
			return nil
		}

		if remove {
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted session %s\n", args[0])
			return nil
		}

		turns, err := store.Load(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		var data []byte
		switch format {
		case "csv":
			data, err = export.CSV(turns)
		case "json":
			data, err = export.JSON(turns)
		default:
			return fmt.Errorf("unsupported format %q (csv or json)", format)
		}
		if err != nil {
			return err
		}

		if outPath == "" {
			_, err = out.Write(data)
			return err
		}
		if err := os.WriteFile(outPath, data, 0600); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		fmt.Fprintf(out, "Wrote %s\n", outPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "csv", "Output format: csv or json")
	exportCmd.Flags().StringP("out", "o", "", "Write to file instead of stdout")
	exportCmd.Flags().Bool("delete", false, "Remove the session from the archive instead of exporting it")
	rootCmd.AddCommand(exportCmd)
}
