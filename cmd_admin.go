package main

import (
	"fmt"
	"log"

	authuc "github.com/landovsky/gmail-assistant-sub002/internal/auth/usecase"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tokenCmd)

	cleanupCmd.Flags().Int("days", 0, "Delete finished jobs older than this many days (default from config)")
	tokenCmd.Flags().String("email", "", "Email address of the user")
	tokenCmd.Flags().Duration("ttl", authuc.DefaultTokenTTL, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("email")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := newApp(); err != nil {
			return err
		}
		log.Printf("Database schema is up to date")
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old finished jobs and requeue stale running ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp()
		if err != nil {
			return err
		}
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			days = a.appCfg.Sync.JobRetentionDays
		}
		deleted, err := a.jobs.Cleanup(ctx, days)
		if err != nil {
			return fmt.Errorf("failed to clean up jobs: %w", err)
		}
		reclaimed, err := a.newScheduler().ReclaimStale(ctx)
		if err != nil {
			return fmt.Errorf("failed to reclaim jobs: %w", err)
		}
		log.Printf("Deleted %d jobs older than %d days, requeued %d stale jobs", deleted, days, reclaimed)
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Renew the Gmail push subscription of every active user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp()
		if err != nil {
			return err
		}
		if a.watchTopic() == "" {
			return fmt.Errorf("GOOGLE_PUBSUB_TOPIC is not set")
		}
		n, err := a.newScheduler().RenewWatches(ctx)
		if err != nil {
			return err
		}
		log.Printf("Renewed %d watches on %s", n, a.watchTopic())
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		email, _ := cmd.Flags().GetString("email")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := authuc.NewAuthUsecase(a.users, a.cfg.JWTSecret).IssueToken(cmd.Context(), email, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
