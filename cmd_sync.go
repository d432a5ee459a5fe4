package main

import (
	"errors"
	"fmt"
	"log"

	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// syncParallelism bounds how many mailboxes `sync --all` walks at once.
const syncParallelism = 4

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().String("user", "", "Email address of the user to sync")
	syncCmd.Flags().Bool("all", false, "Sync every active user")
	syncCmd.Flags().Bool("full", false, "Ignore the history cursor and bootstrap from the inbox")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync mailboxes now and queue the resulting jobs",
	Long: `Runs the sync engine in the foreground for one user or for all active
users. Classification and drafting jobs are queued for the workers.`,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	email, _ := cmd.Flags().GetString("user")
	all, _ := cmd.Flags().GetBool("all")
	full, _ := cmd.Flags().GetBool("full")
	if (email == "") == !all {
		return errors.New("pass exactly one of --user or --all")
	}

	a, err := newApp()
	if err != nil {
		return err
	}

	var users []*userdomain.User
	if all {
		if users, err = a.users.ListActive(ctx); err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
	} else {
		user, err := a.users.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("unknown user %s", email)
		}
		users = append(users, user)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncParallelism)
	for _, u := range users {
		g.Go(func() error {
			mb, err := a.mailboxes.ForUser(gctx, u)
			if err != nil {
				return fmt.Errorf("%s: %w", u.Email, err)
			}
			res, err := a.sync.SyncUser(gctx, mb, u.ID, jobdomain.SyncPayload{ForceFull: full})
			if err != nil {
				return fmt.Errorf("%s: %w", u.Email, err)
			}
			log.Printf("[Sync] %s: bootstrapped=%v new=%d labels=%d deleted=%d queued=%d history=%s",
				u.Email, res.Bootstrapped, res.NewMessages, res.LabelChanges, res.Deletions, res.JobsQueued, res.HistoryID)
			return nil
		})
	}
	return g.Wait()
}
