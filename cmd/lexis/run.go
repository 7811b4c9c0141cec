package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// cliTrigger labels runs started from the command line.
const cliTrigger = "cli"

var runQueued bool

var runCmd = &cobra.Command{
	Use:   "run [website]",
	Short: "Run a website's pipeline stages",
	Long: `Runs every stage for the website in this process and prints the run
report. With --queue the run is handed to the workers instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued pipeline stages until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func init() {
	runCmd.Flags().BoolVarP(&runQueued, "queue", "q", false, "Enqueue the run for workers instead of running it here")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workerCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	a, err := open()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	site, err := a.website(ctx, args[0])
	if err != nil {
		return err
	}

	if runQueued {
		runID, err := a.domain.Pipeline.Enqueue(ctx, site.ID, cliTrigger)
		if err != nil {
			return fmt.Errorf("enqueue run: %w", err)
		}
		cmd.Printf("Run %s queued for %s\n", runID, site.Name)
		return nil
	}

	cmd.Printf("Running pipeline for %s...\n", site.Name)
	run, err := a.domain.Pipeline.Run(ctx, site.ID, cliTrigger)
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	cmd.Println(renderStages(run))
	cmd.Printf("Run %s finished: %s\n", run.ID, run.Status)
	return nil
}

func runWorker(cmd *cobra.Command, _ []string) error {
	a, err := open()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(a.infra.Lifecycle.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := a.cfg.Pipeline.Consumers
	cmd.Printf("Starting %d pipeline worker(s)\n", n)
	return a.domain.Pipeline.Work(ctx, n)
}
