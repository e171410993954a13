package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/darbyjahn/smallphot0-backend/internal/access"
	"github.com/darbyjahn/smallphot0-backend/internal/catalog"
	"github.com/darbyjahn/smallphot0-backend/internal/filesystem"
	"github.com/darbyjahn/smallphot0-backend/internal/journal"
	"github.com/darbyjahn/smallphot0-backend/internal/mediastore"
)

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List galleries with item counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, dir, err := c.open()
			if err != nil {
				return err
			}

			entries, err := dir.List()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tIMAGES\tVIDEOS\tPENDING\tFAILED\tPIN")
			for _, e := range entries {
				cat, err := repo.Load(e.ID)
				switch {
				case errors.Is(err, catalog.ErrNotFound):
					fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\tmissing\n", e.ID, e.Title)
					continue
				case errors.Is(err, catalog.ErrCorrupt):
					fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\tcorrupt\n", e.ID, e.Title)
					continue
				case err != nil:
					return err
				}

				n := cat.Count()
				pin := "no"
				if cat.Locked() {
					pin = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", e.ID, cat.Title, n.Images, n.Videos, n.Pending, n.Failed, pin)
			}
			return tw.Flush()
		},
	}
}

// offlineNote is appended to the help of commands that write gallery.json.
const offlineNote = `This command writes gallery.json without the server's lock. Stop the server
first; while it runs, use PUT /api/galleries/{id}/pin instead.`

func newSetPINCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set-pin <gallery>",
		Short: "Set or replace a gallery PIN",
		Long: `Set or replace the PIN that unlocks a gallery.

The PIN is read twice without echo and stored as a bcrypt hash. It must be
4 to 32 letters or digits. When stdin is not a terminal the PIN and its
confirmation are read as two lines.

` + offlineNote,
		Example: `  galleryctl set-pin alice
  printf '4321\n4321\n' | galleryctl set-pin alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			repo, _, err := c.open()
			if err != nil {
				return err
			}
			if !repo.Exists(id) {
				return fmt.Errorf("gallery %q not found", id)
			}

			pin, err := c.readPIN(cmd, "New PIN: ")
			if err != nil {
				return err
			}
			confirm, err := c.readPIN(cmd, "Confirm PIN: ")
			if err != nil {
				return err
			}
			if pin != confirm {
				return errors.New("PINs do not match")
			}

			hashed, err := access.HashPIN(pin)
			if err != nil {
				return err
			}
			if err := repo.SetPIN(id, hashed); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "PIN set for gallery %s.\n", id)
			return nil
		},
	}
}

func newClearPINCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-pin <gallery>",
		Short: "Remove a gallery PIN",
		Long:  "Remove the PIN so the gallery opens without unlocking.\n\n" + offlineNote,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			repo, _, err := c.open()
			if err != nil {
				return err
			}
			if err := repo.SetPIN(id, ""); err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					return fmt.Errorf("gallery %q not found", id)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "PIN cleared for gallery %s.\n", id)
			return nil
		},
	}
}

func newJobsCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show recent transcode jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := mediastore.New(c.dataDir).JournalPath()
			if !filesystem.Exists(path) {
				fmt.Fprintln(cmd.OutOrStdout(), "No transcode journal (transcoding has never run).")
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			j, err := journal.Open(ctx, path)
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			jobs, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tGALLERY\tSTORED\tSTATE\tQUEUED\tTOOK\tERROR")
			for _, job := range jobs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					job.ID, job.GalleryID, job.StoredName, job.State,
					job.QueuedAt.Local().Format(time.DateTime), took(job), job.Error)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of jobs to show")
	return cmd
}

func took(job journal.Job) string {
	if job.StartedAt == nil || job.FinishedAt == nil {
		return "-"
	}
	return job.FinishedAt.Sub(*job.StartedAt).Round(time.Millisecond).String()
}
