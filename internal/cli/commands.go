package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vietddude/resync/internal/control"
	"github.com/vietddude/resync/internal/core/domain"
	"github.com/vietddude/resync/internal/infra/remote"
)

var (
	draftTitle string
	draftBody  string
	draftTags  []string
	draftOwner string
)

var profileCmd = &cobra.Command{
	Use:   "profile <id>",
	Short: "Load a profile through the single-flight guard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *control.App) error {
			p, err := app.LoadProfile(ctx, args[0])
			if err != nil {
				return userError(err)
			}
			fmt.Printf("%s\t@%s\t%s\n", p.ID, p.Username, p.DisplayName)
			return nil
		})
	},
}

var authorsCmd = &cobra.Command{
	Use:   "authors <id>...",
	Short: "Resolve many profiles with batched queries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *control.App) error {
			profiles, partial, err := app.Authors(ctx, args)
			if err != nil {
				return userError(err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tUSERNAME\tNAME")
			for _, p := range profiles {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Username, p.DisplayName)
			}
			_ = w.Flush()

			if partial {
				fmt.Fprintln(os.Stderr, "some authors could not be loaded")
			}
			return nil
		})
	},
}

var reactCmd = &cobra.Command{
	Use:   "react <target> <user> like|dislike",
	Short: "Toggle a reaction optimistically and print the reconciled counts",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := domain.ParseReactionType(args[2])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *control.App) error {
			s, err := app.React(ctx, args[0], args[1], t)
			if err != nil {
				fmt.Printf("rolled back: %s  (+%d / -%d)\n", s.Type, s.PositiveCount, s.NegativeCount)
				return userError(err)
			}
			fmt.Printf("%s  (+%d / -%d)\n", s.Type, s.PositiveCount, s.NegativeCount)
			return nil
		})
	},
}

var draftCmd = &cobra.Command{
	Use:   "draft [id]",
	Short: "Edit a draft and save it through the autosave scheduler",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := uuid.NewString()
		if len(args) == 1 {
			id = args[0]
		}
		return withApp(cmd, func(ctx context.Context, app *control.App) error {
			editor, err := app.OpenDraft(ctx, id, draftOwner)
			if err != nil {
				return userError(err)
			}

			d := editor.Draft()
			if cmd.Flags().Changed("title") {
				d.Title = draftTitle
			}
			if cmd.Flags().Changed("body") {
				d.Body = draftBody
			}
			if cmd.Flags().Changed("tag") {
				d.Tags = draftTags
			}
			editor.Update(d)

			if !editor.Status().Unsaved {
				fmt.Printf("%s unchanged\n", id)
				return app.CloseDraft(ctx, id)
			}
			if err := app.CloseDraft(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "%s kept in local backup\n", id)
				return userError(err)
			}
			fmt.Printf("%s saved\n", id)
			return nil
		})
	},
}

func init() {
	draftCmd.Flags().StringVar(&draftTitle, "title", "", "draft title")
	draftCmd.Flags().StringVar(&draftBody, "body", "", "draft body")
	draftCmd.Flags().StringSliceVar(&draftTags, "tag", nil, "draft tag (repeatable)")
	draftCmd.Flags().StringVar(&draftOwner, "owner", "u1", "owner id for a new draft")

	rootCmd.AddCommand(profileCmd, authorsCmd, reactCmd, draftCmd)
}

// userError replaces a classified error with the text an end user should see.
func userError(err error) error {
	var ce *remote.ClassifiedError
	if errors.As(err, &ce) {
		return errors.New(ce.UserMessage())
	}
	return err
}
