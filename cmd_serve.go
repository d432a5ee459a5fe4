package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	api "github.com/landovsky/gmail-assistant-sub002/cmd/api"
	agentdelivery "github.com/landovsky/gmail-assistant-sub002/internal/agent/delivery"
	authuc "github.com/landovsky/gmail-assistant-sub002/internal/auth/usecase"
	emaildelivery "github.com/landovsky/gmail-assistant-sub002/internal/email/delivery"
	jobdelivery "github.com/landovsky/gmail-assistant-sub002/internal/job/delivery"
	llmcalldelivery "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/delivery"
	syncdelivery "github.com/landovsky/gmail-assistant-sub002/internal/sync/delivery"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Bool("no-scheduler", false, "Only process jobs, without the periodic maintenance")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the workers, the scheduler and the Pub/Sub receiver",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job workers and the scheduler without the HTTP API",
	RunE:  runWorker,
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.pipeline()
	if err != nil {
		return err
	}

	notifications := syncdelivery.NewNotificationHandler(a.users, a.jobs)
	handler := api.NewHandler(
		authuc.NewAuthUsecase(a.users, a.cfg.JWTSecret),
		notifications,
		emaildelivery.NewEmailHandler(a.emails, a.events, a.llmCalls, a.agentRuns, a.jobs),
		jobdelivery.NewJobHandler(a.jobs),
		agentdelivery.NewAgentHandler(a.agentRuns),
		llmcalldelivery.NewLLMCallHandler(a.llmCalls),
		api.NewSettingsHandler(a.settings),
	)

	p.pool.Start(ctx)
	defer p.pool.Stop()
	if err := p.scheduler.Start(ctx); err != nil {
		return err
	}
	defer p.scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.styles.Watch(ctx); err != nil {
			log.Printf("[Styles] Hot reload disabled: %v", err)
		}
		return nil
	})

	// Only pull from Pub/Sub if project ID is configured
	if a.cfg.GoogleProjectID != "" && a.topicName() != "" {
		receiver, err := syncdelivery.NewReceiver(ctx, a.cfg.GoogleProjectID, a.topicName(), a.cfg.GooglePubSubSubscription, a.cfg.GoogleCredentials, notifications)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize Pub/Sub receiver: %v", err)
		} else {
			g.Go(func() error {
				defer receiver.Close()
				if err := receiver.Start(ctx); err != nil {
					log.Printf("[PubSub] Receiver stopped: %v", err)
				}
				return nil
			})
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, relying on webhook pushes and fallback sync")
	}

	g.Go(func() error {
		return handler.Start(ctx, ":"+a.cfg.Port)
	})
	return g.Wait()
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	p, err := a.pipeline()
	if err != nil {
		return err
	}

	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")
	if !noScheduler {
		if err := p.scheduler.Start(ctx); err != nil {
			return err
		}
		defer p.scheduler.Stop()
	}

	go func() {
		if err := p.styles.Watch(ctx); err != nil {
			log.Printf("[Styles] Hot reload disabled: %v", err)
		}
	}()

	p.pool.Start(ctx)
	<-ctx.Done()
	log.Printf("[Worker] Shutting down")
	p.pool.Stop()
	return nil
}
