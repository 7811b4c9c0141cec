package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest run of every website",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show when each website runs next",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := open()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	latest, err := a.domain.Runs.Latest(ctx)
	if err != nil {
		return fmt.Errorf("load runs: %w", err)
	}
	if len(latest) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}

	sites, err := a.domain.Websites.List(ctx)
	if err != nil {
		return fmt.Errorf("load websites: %w", err)
	}
	names := make(map[uuid.UUID]string, len(sites))
	for _, s := range sites {
		names[s.ID] = s.Name
	}

	cmd.Println(renderRuns(latest, names))
	return nil
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	a, err := open()
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.domain.Scheduler.Load(context.Background())
	if err != nil {
		return err
	}
	if n == 0 {
		cmd.Println("No enabled websites.")
		return nil
	}

	cmd.Println(renderSchedule(a.domain.Scheduler.Entries()))
	return nil
}
