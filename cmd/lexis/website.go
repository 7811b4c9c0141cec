package main

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/JaimeStill/lexis/internal/websites"
)

var websiteCmd = &cobra.Command{
	Use:   "website",
	Short: "Manage crawled websites",
}

var websiteAddCmd = &cobra.Command{
	Use:   "add [name] [url]",
	Short: "Register a website",
	Args:  cobra.ExactArgs(2),
	RunE:  runWebsiteAdd,
}

var websiteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered websites",
	Args:  cobra.NoArgs,
	RunE:  runWebsiteList,
}

var websiteSchedule string

func init() {
	websiteAddCmd.Flags().StringVarP(&websiteSchedule, "schedule", "s", "", "Cron schedule overriding the default")

	websiteCmd.AddCommand(websiteAddCmd)
	websiteCmd.AddCommand(websiteListCmd)
	rootCmd.AddCommand(websiteCmd)
}

func runWebsiteAdd(cmd *cobra.Command, args []string) error {
	cmdIn := websites.CreateCommand{Name: args[0], URL: args[1]}
	if websiteSchedule != "" {
		if _, err := cron.ParseStandard(websiteSchedule); err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
		cmdIn.Schedule = &websiteSchedule
	}

	a, err := open()
	if err != nil {
		return err
	}
	defer a.close()

	site, err := a.domain.Websites.Create(context.Background(), cmdIn)
	if err != nil {
		return fmt.Errorf("create website: %w", err)
	}

	cmd.Printf("Website %s registered: %s\n", site.Name, site.ID)
	return nil
}

func runWebsiteList(cmd *cobra.Command, _ []string) error {
	a, err := open()
	if err != nil {
		return err
	}
	defer a.close()

	sites, err := a.domain.Websites.List(context.Background())
	if err != nil {
		return fmt.Errorf("list websites: %w", err)
	}
	if len(sites) == 0 {
		cmd.Println("No websites registered.")
		return nil
	}

	cmd.Println(renderWebsites(sites, a.cfg.Pipeline.Schedule))
	return nil
}
