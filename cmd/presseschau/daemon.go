package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var fetchInterval time.Duration

	cmd := &cobra.Command{
		Use:     "daemon",
		Aliases: []string{"run"},
		Short:   "Run fetch and background summarization in a loop",
		Long: `Initializes the model runtime, starts the inference worker, and fetches
all feeds on a timer. The worker summarizes and categorizes new articles
as they arrive. Handles SIGINT/SIGTERM for graceful shutdown (the article
currently being processed is finished first).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			engine, err := newEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			// A missing or broken model is not fatal: fetching still
			// works, the worker just idles until a model is imported
			// and the daemon restarted.
			if err := engine.InitializeEngine(ctx); err != nil {
				log.Printf("daemon: model unavailable, running fetch-only: %v", err)
			}
			engine.StartWorker(ctx)
			defer engine.StopWorker()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			log.Printf("daemon: starting with fetch interval %s", fetchInterval)

			cycle := 1
			for {
				start := time.Now()
				result, err := engine.FetchAndSummarizeNews(ctx)
				if err != nil {
					log.Printf("daemon: cycle %d fetch error: %v", cycle, err)
				} else {
					log.Printf("daemon: cycle %d done in %s, %d new articles (%d/%d feeds ok)",
						cycle, time.Since(start).Round(time.Millisecond),
						result.NewArticles, result.FeedsTotal-result.FeedsErrored, result.FeedsTotal)
				}
				cycle++

				timer := time.NewTimer(fetchInterval)
				select {
				case <-sig:
					timer.Stop()
					log.Println("daemon: received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&fetchInterval, "interval", "i", 15*time.Minute, "duration between fetch cycles (e.g. 15m, 30s, 1h)")
	return cmd
}
