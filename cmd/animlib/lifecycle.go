package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"animlib/internal/app"
)

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Soft-deleted animations",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived animations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "ArchiveList", func(ctx context.Context, a *app.App) error {
			items, err := a.DB().Archive().List(ctx)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("Archive is empty.")
				return nil
			}
			for _, it := range items {
				fmt.Printf("%s  %-36s  %-30s  %s\n", it.ArchivedAt.Format("2006-01-02 15:04"), it.UUID, it.Name, it.OriginalFolderPath)
			}
			size, err := a.DB().Archive().TotalSizeMB(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d item(s), %.1f MB\n", len(items), size)
			return nil
		})
	},
}

var archiveAddCmd = &cobra.Command{
	Use:   "add UUID",
	Short: "Archive an animation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Archive", func(ctx context.Context, a *app.App) error {
			item, err := a.Archive(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Archived %s to %s\n", item.Name, item.ArchiveFolderPath)
			return nil
		})
	},
}

var archiveRestoreCmd = &cobra.Command{
	Use:   "restore UUID",
	Short: "Restore an archived animation to the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RestoreFromArchive", func(ctx context.Context, a *app.App) error {
			an, err := a.RestoreFromArchive(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Restored %s\n", an.Name)
			return nil
		})
	},
}

// trash command
var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Animations staged for permanent deletion",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trashed animations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "TrashList", func(ctx context.Context, a *app.App) error {
			items, err := a.DB().Trash().List(ctx)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("Trash is empty.")
				return nil
			}
			for _, it := range items {
				fmt.Printf("%s  %-36s  %s\n", it.TrashedAt.Format("2006-01-02 15:04"), it.UUID, it.Name)
			}
			return nil
		})
	},
}

var trashAddCmd = &cobra.Command{
	Use:   "add UUID",
	Short: "Move an archived animation to the trash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Trash", func(ctx context.Context, a *app.App) error {
			item, err := a.Trash(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Trashed %s\n", item.Name)
			return nil
		})
	},
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore UUID",
	Short: "Move a trashed animation back to the archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "RestoreFromTrash", func(ctx context.Context, a *app.App) error {
			item, err := a.RestoreFromTrash(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Returned %s to the archive\n", item.Name)
			return nil
		})
	},
}

var trashPurgeCmd = &cobra.Command{
	Use:   "purge UUID",
	Short: "Permanently delete a trashed animation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "Purge", func(ctx context.Context, a *app.App) error {
			return a.Purge(ctx, args[0])
		})
	},
}

var trashEmptyCmd = &cobra.Command{
	Use:   "empty",
	Short: "Permanently delete everything in the trash",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return errors.New("emptying the trash cannot be undone; pass --force")
		}
		return withApp(cmd, "EmptyTrash", func(ctx context.Context, a *app.App) error {
			n, err := a.EmptyTrash(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d animation(s)\n", n)
			return nil
		})
	},
}

func init() {
	archiveCmd.AddCommand(archiveListCmd)
	archiveCmd.AddCommand(archiveAddCmd)
	archiveCmd.AddCommand(archiveRestoreCmd)

	trashCmd.AddCommand(trashListCmd)
	trashCmd.AddCommand(trashAddCmd)
	trashCmd.AddCommand(trashRestoreCmd)
	trashCmd.AddCommand(trashPurgeCmd)
	trashCmd.AddCommand(trashEmptyCmd)
	trashEmptyCmd.Flags().BoolP("force", "f", false, "Confirm permanent deletion")

	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(trashCmd)
}
