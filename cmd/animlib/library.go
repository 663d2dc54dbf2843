package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"animlib/internal/app"
	"animlib/internal/database"
	"animlib/internal/model"
)

// folderID resolves a folder path; the empty path is the root.
func folderID(ctx context.Context, db *database.Database, path string) (int64, error) {
	if model.CleanFolderPath(path) == "" {
		return db.Folders().RootID(ctx)
	}
	f, err := db.Folders().GetByPath(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("folder %q: %w", path, err)
	}
	return f.ID, nil
}

func printAnimations(anims []*model.Animation) {
	if len(anims) == 0 {
		fmt.Println("No animations.")
		return
	}
	for _, an := range anims {
		fav := " "
		if an.IsFavorite {
			fav = "*"
		}
		fmt.Printf("%s %-36s  %-30s  %-10s  %5d fr  %s\n",
			fav, an.UUID, an.Name, an.Status, an.FrameCount, strings.Join(an.Tags, ","))
	}
}

// folders command
var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Manage library folders",
}

var foldersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "FoldersList", func(ctx context.Context, a *app.App) error {
			folders, err := a.DB().Folders().ListWithPaths(ctx)
			if err != nil {
				return err
			}
			for _, f := range folders {
				n, err := a.DB().Animations().Count(ctx, f.ID)
				if err != nil {
					return err
				}
				fmt.Printf("%-40s  %4d  %s\n", f.Path, n, f.Description)
			}
			return nil
		})
	},
}

var foldersCreateCmd = &cobra.Command{
	Use:   "create PATH",
	Short: "Create a folder and any missing parents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, _ := cmd.Flags().GetString("description")

		return withApp(cmd, "FoldersCreate", func(ctx context.Context, a *app.App) error {
			id, err := a.DB().Folders().EnsureExists(ctx, args[0], desc)
			if err != nil {
				return err
			}
			fmt.Printf("Folder %s (id %d)\n", model.CleanFolderPath(args[0]), id)
			return nil
		})
	},
}

var foldersMoveCmd = &cobra.Command{
	Use:   "move PATH NEW_PARENT",
	Short: `Move a folder under another one ("" for the root)`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "FoldersMove", func(ctx context.Context, a *app.App) error {
			id, err := folderID(ctx, a.DB(), args[0])
			if err != nil {
				return err
			}
			parent, err := folderID(ctx, a.DB(), args[1])
			if err != nil {
				return err
			}
			if err := a.DB().Folders().Move(ctx, id, parent); err != nil {
				return err
			}
			moved, err := a.DB().Folders().GetByID(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Moved to %s\n", moved.Path)
			return nil
		})
	},
}

var foldersRenameCmd = &cobra.Command{
	Use:   "rename PATH NAME",
	Short: "Rename a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "FoldersRename", func(ctx context.Context, a *app.App) error {
			id, err := folderID(ctx, a.DB(), args[0])
			if err != nil {
				return err
			}
			return a.DB().Folders().Rename(ctx, id, args[1])
		})
	},
}

var foldersDeleteCmd = &cobra.Command{
	Use:   "delete PATH",
	Short: "Delete a folder, its subfolders and their animations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "FoldersDelete", func(ctx context.Context, a *app.App) error {
			f, err := a.DB().Folders().GetByPath(ctx, args[0])
			if err != nil {
				return fmt.Errorf("folder %q: %w", args[0], err)
			}
			return a.DB().Folders().Delete(ctx, f.ID)
		})
	},
}

// anim command
var animCmd = &cobra.Command{
	Use:   "anim",
	Short: "Browse and edit animations",
}

var animListCmd = &cobra.Command{
	Use:   "list",
	Short: "List animations",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		folder, _ := flags.GetString("folder")
		recursive, _ := flags.GetBool("recursive")
		tags, _ := flags.GetStringSlice("tag")
		rigs, _ := flags.GetStringSlice("rig")
		favorites, _ := flags.GetBool("favorites")
		poses, _ := flags.GetBool("poses")
		status, _ := flags.GetString("status")
		sortBy, _ := flags.GetString("sort")
		desc, _ := flags.GetBool("desc")
		all, _ := flags.GetBool("all-versions")

		return withApp(cmd, "AnimList", func(ctx context.Context, a *app.App) error {
			f := database.Filter{
				IncludeSubfolders:  recursive,
				RigTypes:           rigs,
				Tags:               tags,
				FavoritesOnly:      favorites,
				PosesOnly:          poses,
				SortBy:             sortBy,
				IncludeAllVersions: all,
			}
			if desc {
				f.SortOrder = "desc"
			}
			if folder != "" {
				id, err := folderID(ctx, a.DB(), folder)
				if err != nil {
					return err
				}
				f.FolderID = id
			}
			if status != "" {
				s, err := model.ParseStatus(status)
				if err != nil {
					return err
				}
				f.Status = s
			}
			anims, err := a.DB().Animations().Filter(ctx, f)
			if err != nil {
				return err
			}
			printAnimations(anims)
			return nil
		})
	},
}

var animSearchCmd = &cobra.Command{
	Use:   "search TEXT",
	Short: "Search names, descriptions and tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "AnimSearch", func(ctx context.Context, a *app.App) error {
			anims, err := a.DB().Animations().Search(ctx, args[0])
			if err != nil {
				return err
			}
			printAnimations(anims)
			return nil
		})
	},
}

var animShowCmd = &cobra.Command{
	Use:   "show UUID",
	Short: "Show an animation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "AnimShow", func(ctx context.Context, a *app.App) error {
			anims := a.DB().Animations()
			an, err := anims.GetByUUID(ctx, args[0])
			if err != nil {
				return err
			}
			folder, err := a.DB().Folders().GetByID(ctx, an.FolderID)
			if err != nil {
				return err
			}
			unresolved, err := a.DB().ReviewNotes().UnresolvedCount(ctx, an.UUID)
			if err != nil {
				return err
			}
			if err := anims.TouchLastViewed(ctx, an.UUID); err != nil {
				return err
			}

			fmt.Printf("UUID:       %s\n", an.UUID)
			fmt.Printf("Name:       %s\n", an.Name)
			fmt.Printf("Folder:     %s\n", folder.Path)
			fmt.Printf("Rig:        %s (%s, %d bones)\n", an.RigType, an.ArmatureName, an.BoneCount)
			fmt.Printf("Frames:     %d-%d (%d @ %d fps, %.2fs)\n", an.FrameStart, an.FrameEnd, an.FrameCount, an.FPS, an.DurationSeconds)
			fmt.Printf("Tags:       %s\n", strings.Join(an.Tags, ", "))
			fmt.Printf("Author:     %s\n", an.Author)
			fmt.Printf("Status:     %s\n", an.Status)
			fmt.Printf("Version:    v%03d %s (group %s, latest %v)\n", an.Version, an.VersionLabel, an.VersionGroupID, an.IsLatest)
			fmt.Printf("Pose:       %v  Partial: %v  Favorite: %v  Locked: %v\n", an.IsPose, an.IsPartial, an.IsFavorite, an.IsLocked)
			fmt.Printf("Manifest:   %s\n", an.JSONFilePath)
			fmt.Printf("Notes:      %d unresolved\n", unresolved)
			fmt.Printf("Created:    %s\n", an.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		})
	},
}

var animFavCmd = &cobra.Command{
	Use:   "fav UUID",
	Short: "Toggle the favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "AnimFavorite", func(ctx context.Context, a *app.App) error {
			fav, err := a.DB().Animations().ToggleFavorite(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("favorite: %v\n", fav)
			return nil
		})
	},
}

var animStatusCmd = &cobra.Command{
	Use:   "status UUID [STATUS]",
	Short: "Show or set the review status",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "AnimStatus", func(ctx context.Context, a *app.App) error {
			anims := a.DB().Animations()
			if len(args) == 2 {
				s, err := model.ParseStatus(args[1])
				if err != nil {
					return err
				}
				if err := anims.SetStatus(ctx, args[0], s); err != nil {
					return err
				}
			}
			s, err := anims.Status(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(s)
			return nil
		})
	},
}

var animVersionsCmd = &cobra.Command{
	Use:   "versions UUID",
	Short: "Show the version history of an animation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "AnimVersions", func(ctx context.Context, a *app.App) error {
			anims := a.DB().Animations()
			an, err := anims.GetByUUID(ctx, args[0])
			if err != nil {
				return err
			}
			group := an.VersionGroupID
			if group == "" {
				group = an.UUID
			}
			versions, err := anims.VersionHistory(ctx, group)
			if err != nil {
				return err
			}
			for _, v := range versions {
				latest := ""
				if v.IsLatest {
					latest = "  [latest]"
				}
				fmt.Printf("v%03d  %-8s  %s  %s%s\n", v.Version, v.VersionLabel, v.UUID, v.CreatedAt.Format("2006-01-02"), latest)
			}
			return nil
		})
	},
}

// notes command
var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Frame-specific review notes",
}

var notesListCmd = &cobra.Command{
	Use:   "list UUID",
	Short: "List an animation's review notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "NotesList", func(ctx context.Context, a *app.App) error {
			notes, err := a.DB().ReviewNotes().ListForAnimation(ctx, args[0])
			if err != nil {
				return err
			}
			for _, n := range notes {
				mark := " "
				if n.Resolved {
					mark = "x"
				}
				fmt.Printf("#%-4d [%s] frame %-5d %-12s %s\n", n.ID, mark, n.Frame, n.Author, n.Note)
			}
			return nil
		})
	},
}

var notesAddCmd = &cobra.Command{
	Use:   "add UUID FRAME NOTE",
	Short: "Add a review note at a frame",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		author, _ := cmd.Flags().GetString("author")
		frame, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid frame %q", args[1])
		}

		return withApp(cmd, "NotesAdd", func(ctx context.Context, a *app.App) error {
			id, err := a.DB().ReviewNotes().Add(ctx, args[0], frame, args[2], author)
			if err != nil {
				return err
			}
			fmt.Printf("Added note #%d\n", id)
			return nil
		})
	},
}

func noteID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid note id %q", arg)
	}
	return id, nil
}

var notesResolveCmd = &cobra.Command{
	Use:   "resolve ID",
	Short: "Toggle a note's resolved flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := noteID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, "NotesResolve", func(ctx context.Context, a *app.App) error {
			resolved, err := a.DB().ReviewNotes().ToggleResolved(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("resolved: %v\n", resolved)
			return nil
		})
	},
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a review note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := noteID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, "NotesDelete", func(ctx context.Context, a *app.App) error {
			return a.DB().ReviewNotes().Delete(ctx, id)
		})
	},
}

// metadata command
var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Export and import user-authored metadata",
}

var metadataExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write metadata of every animation to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "MetadataExport", func(ctx context.Context, a *app.App) error {
			n, err := a.ExportMetadata(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d animation(s)\n", n)
			return nil
		})
	},
}

var metadataImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge a metadata export into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "MetadataImport", func(ctx context.Context, a *app.App) error {
			n, err := a.ImportMetadata(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Updated %d animation(s)\n", n)
			return nil
		})
	},
}

func init() {
	foldersCmd.AddCommand(foldersListCmd)
	foldersCmd.AddCommand(foldersCreateCmd)
	foldersCreateCmd.Flags().StringP("description", "d", "", "Folder description")
	foldersCmd.AddCommand(foldersMoveCmd)
	foldersCmd.AddCommand(foldersRenameCmd)
	foldersCmd.AddCommand(foldersDeleteCmd)

	animCmd.AddCommand(animListCmd)
	f := animListCmd.Flags()
	f.String("folder", "", "Only animations in this folder")
	f.BoolP("recursive", "r", false, "Include subfolders of --folder")
	f.StringSlice("tag", nil, "Match any of these tags")
	f.StringSlice("rig", nil, "Match any of these rig types")
	f.Bool("favorites", false, "Favorites only")
	f.Bool("poses", false, "Poses only")
	f.String("status", "", "Only this review status")
	f.String("sort", database.SortByName, "Sort key: name, created_date, duration_seconds, rig_type, last_viewed_date, custom_order")
	f.Bool("desc", false, "Sort descending")
	f.Bool("all-versions", false, "Include superseded versions")
	animCmd.AddCommand(animSearchCmd)
	animCmd.AddCommand(animShowCmd)
	animCmd.AddCommand(animFavCmd)
	animCmd.AddCommand(animStatusCmd)
	animCmd.AddCommand(animVersionsCmd)

	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesAddCmd)
	notesAddCmd.Flags().StringP("author", "a", "", "Note author")
	notesCmd.AddCommand(notesResolveCmd)
	notesCmd.AddCommand(notesDeleteCmd)

	metadataCmd.AddCommand(metadataExportCmd)
	metadataCmd.AddCommand(metadataImportCmd)

	rootCmd.AddCommand(foldersCmd)
	rootCmd.AddCommand(animCmd)
	rootCmd.AddCommand(notesCmd)
	rootCmd.AddCommand(metadataCmd)
}
