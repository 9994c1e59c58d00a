package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/brojonat/vialytics/client"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/urfave/cli/v2"
)

func startJobCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start indexing a wallet's history",
		ArgsUsage: "ADDRESS",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "Wait for the job to finish"},
			&cli.DurationFlag{Name: "interval", Usage: "Polling interval with --wait", Value: client.DefaultPollInterval},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if err := solana.ValidateAddress(address); err != nil {
				return err
			}
			api, err := newAPIClient(c)
			if err != nil {
				return err
			}

			job, err := api.StartJob(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to start job: %w", err)
			}
			if !c.Bool("wait") {
				return printJob(c, job)
			}
			return awaitJob(c, api, job.ID, c.Duration("interval"))
		},
	}
}

func getJobCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a job's status",
		ArgsUsage: "JOB_ID",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return fmt.Errorf("job id is required")
			}
			api, err := newAPIClient(c)
			if err != nil {
				return err
			}
			job, err := api.GetJob(c.Context, id)
			if err != nil {
				return err
			}
			return printJob(c, job)
		},
	}
}

func waitJobCommand() *cli.Command {
	return &cli.Command{
		Name:      "wait",
		Usage:     "Wait for a job to finish, printing progress",
		ArgsUsage: "JOB_ID",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "interval", Usage: "Polling interval", Value: client.DefaultPollInterval},
			&cli.DurationFlag{Name: "timeout", Usage: "Give up after this long (0 waits forever)"},
		},
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return fmt.Errorf("job id is required")
			}
			api, err := newAPIClient(c)
			if err != nil {
				return err
			}
			if timeout := c.Duration("timeout"); timeout > 0 {
				ctx, cancel := context.WithTimeout(c.Context, timeout)
				defer cancel()
				c.Context = ctx
			}
			return awaitJob(c, api, id, c.Duration("interval"))
		},
	}
}

func awaitJob(c *cli.Context, api *client.Client, id string, interval time.Duration) error {
	last := -1
	job, err := api.AwaitJob(c.Context, id, interval, func(j *client.Job) {
		if j.Progress != last && !c.Bool("json") {
			fmt.Fprintf(c.App.ErrWriter, "%s  %-9s %3d%%\n", time.Now().Format(time.TimeOnly), j.Status, j.Progress)
			last = j.Progress
		}
	})
	if job != nil {
		if perr := printJob(c, job); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func printJob(c *cli.Context, job *client.Job) error {
	if c.Bool("json") {
		return outputJSON(c.App.Writer, job)
	}
	writeJob(c.App.Writer, job)
	return nil
}

func writeJob(w io.Writer, job *client.Job) {
	fmt.Fprintf(w, "Job:       %s\n", job.ID)
	fmt.Fprintf(w, "Wallet:    %s\n", job.WalletAddress)
	fmt.Fprintf(w, "Status:    %s\n", job.Status)
	fmt.Fprintf(w, "Progress:  %d%%\n", job.Progress)
	if job.Error != nil && *job.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", *job.Error)
	}
	if !job.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:   %s\n", job.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "Updated:   %s\n", job.UpdatedAt.Format(time.RFC3339))
	}
}
