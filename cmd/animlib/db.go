package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"animlib/internal/app"
)

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "DBStatus", func(ctx context.Context, a *app.App) error {
			st, err := a.Status(ctx)
			if err != nil {
				return err
			}
			s := st.Stats
			fmt.Printf("Database:       %s\n", st.Path)
			fmt.Printf("Schema version: %d\n", s.SchemaVersion)
			fmt.Printf("Size:           %.1f KB\n", float64(s.SizeBytes)/1024)
			fmt.Printf("Folders:        %d\n", s.Folders)
			fmt.Printf("Animations:     %d (%d latest)\n", s.Animations, s.Latest)
			fmt.Printf("Archived:       %d\n", s.Archived)
			fmt.Printf("Trashed:        %d\n", s.Trashed)
			fmt.Printf("Review notes:   %d\n", s.ReviewNotes)
			fmt.Printf("Local backups:  %d\n", len(st.Backups))
			if len(st.Backups) > 0 {
				fmt.Printf("Last backup:    %s\n", st.Backups[0].ModTime.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("Vaults:         %v\n", st.Vaults)
			fmt.Printf("Keys set up:    %v\n", st.KeysConfigured)
			return nil
		})
	},
}

var dbCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run integrity and foreign key checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "DBCheck", func(ctx context.Context, a *app.App) error {
			report, err := a.DB().IntegrityCheck(ctx)
			if err != nil {
				return err
			}
			if report.OK {
				fmt.Println("ok")
				return nil
			}
			for _, m := range report.Messages {
				fmt.Println(m)
			}
			for _, v := range report.ForeignKeyViolations {
				fmt.Println(v)
			}
			return errors.New("integrity check failed")
		})
	},
}

var dbOptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Vacuum and analyze the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "DBOptimize", func(ctx context.Context, a *app.App) error {
			res, err := a.DB().Optimize(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Size: %d -> %d bytes\n", res.SizeBefore, res.SizeAfter)
			return nil
		})
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "DBBackup", func(ctx context.Context, a *app.App) error {
			res, err := a.Backup(ctx)
			if res != nil {
				fmt.Printf("Backup: %s\n", res.Path)
				for _, v := range res.Uploaded {
					fmt.Printf("Uploaded to %s\n", v)
				}
				if len(res.Pruned) > 0 {
					fmt.Printf("Pruned %d old backup(s)\n", len(res.Pruned))
				}
			}
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			return nil
		})
	},
}

var dbBackupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")

		return withApp(cmd, "DBBackups", func(ctx context.Context, a *app.App) error {
			if remote {
				byVault, err := a.RemoteBackups()
				if err != nil {
					return err
				}
				names := make([]string, 0, len(byVault))
				for name := range byVault {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Printf("%s:\n", name)
					for _, b := range byVault[name] {
						fmt.Printf("  %s\n", b)
					}
				}
				return nil
			}

			backups, err := a.Backups()
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Println("No backups.")
				return nil
			}
			for _, b := range backups {
				fmt.Printf("%s  %10d  %s\n", b.ModTime.Format("2006-01-02 15:04:05"), b.Size, b.Name)
			}
			return nil
		})
	},
}

var dbRestoreCmd = &cobra.Command{
	Use:   "restore BACKUP",
	Short: "Replace the database with a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")

		var pass string
		if app.BackupNeedsPassphrase(args[0]) {
			var err error
			if pass, err = readPassphrase("Passphrase: "); err != nil {
				return err
			}
		}

		return withApp(cmd, "DBRestore", func(ctx context.Context, a *app.App) error {
			res, err := a.Restore(ctx, args[0], vaultName, pass)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			fmt.Printf("Restored %s (schema %d -> %d)\n", args[0], res.From, res.To)
			return nil
		})
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Import the animation library into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _ := cmd.Flags().GetString("root")

		return withApp(cmd, "Scan", func(ctx context.Context, a *app.App) error {
			res, err := a.Scan(ctx, root)
			if err != nil {
				return err
			}
			fmt.Printf("Found %d, imported %d, upgraded %d, reconciled %d, failed %d\n",
				res.TotalFound, res.NewlyImported, res.Upgraded, res.Reconciled, res.Failed)
			return nil
		})
	},
}

// daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled backups and rescans until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		now, _ := cmd.Flags().GetBool("now")

		return withApp(cmd, "Daemon", func(ctx context.Context, a *app.App) error {
			s, err := a.Scheduler()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if now {
				for _, job := range s.Jobs() {
					if err := s.RunNow(ctx, job); err != nil {
						a.Logger().Warn("initial run failed", "job", job, "error", err)
					}
				}
			}

			s.Start(ctx)
			for _, job := range s.Jobs() {
				if next := s.NextRun(job); next != nil {
					fmt.Printf("%s: next run %s\n", job, next.Format("2006-01-02 15:04"))
				}
			}
			<-ctx.Done()
			s.Stop()
			return nil
		})
	},
}

func init() {
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbCheckCmd)
	dbCmd.AddCommand(dbOptimizeCmd)
	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbBackupsCmd)
	dbBackupsCmd.Flags().BoolP("remote", "r", false, "List backups stored in the vaults")
	dbCmd.AddCommand(dbRestoreCmd)
	dbRestoreCmd.Flags().String("vault", "", "Download the backup from this vault first")

	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().String("root", "", "Library root (default: [library].root)")
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.Flags().Bool("now", false, "Run every job once before waiting for the schedule")
}
