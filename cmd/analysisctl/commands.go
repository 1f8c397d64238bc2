package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/kiranshivaraju/fuzzjobs/internal/analysisclient"
	"github.com/spf13/cobra"
)

type options struct {
	serverURL string
	timeout   time.Duration
	newClient func(baseURL string, timeout time.Duration) analysisclient.Client
}

func newRootCmd() *cobra.Command {
	opts := &options{
		newClient: func(baseURL string, timeout time.Duration) analysisclient.Client {
			return analysisclient.NewHTTPClient(baseURL, timeout)
		},
	}
	return buildRootCmd(opts)
}

func buildRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "analysisctl",
		Short:         "Talk to the standalone analysis server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := os.Getenv("ANALYSIS_SERVER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	root.PersistentFlags().StringVarP(&opts.serverURL, "server", "s", defaultURL, "Analysis server base URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per request timeout")

	root.AddCommand(
		createCommand(opts),
		resultCommand(opts),
		abortCommand(opts),
		listCommand(opts),
	)
	return root
}

func (o *options) client() analysisclient.Client {
	return o.newClient(o.serverURL, o.timeout)
}

func createCommand(opts *options) *cobra.Command {
	var (
		decomposition int
		verifyOnly    bool
	)
	cmd := &cobra.Command{
		Use:   "create <graph.xml>",
		Short: "Submit a graph for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			job, err := opts.client().CreateJob(cmd.Context(), data, decomposition, verifyOnly)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %d: %d configurations, %d nodes\n",
				job.JobID, job.NumConfigurations, job.NumNodes)
			return nil
		},
	}
	cmd.Flags().IntVarP(&decomposition, "decomposition", "d", 10, "Number of alpha cuts")
	cmd.Flags().BoolVar(&verifyOnly, "verify-only", false, "Only validate the graph")
	return cmd
}

func resultCommand(opts *options) *cobra.Command {
	var (
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Print a job's normalized result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}

			client := opts.client()
			var report *analysisclient.Report
			if wait {
				report, err = analysisclient.WaitForResult(cmd.Context(), client, jobID, interval)
			} else {
				report, err = client.GetJobResult(cmd.Context(), jobID)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job has finished")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval with --wait")
	return cmd
}

func abortCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <job-id>",
		Short: "Abort a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			aborted, err := opts.client().AbortJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			if aborted {
				fmt.Fprintf(cmd.OutOrStdout(), "job %d aborted\n", jobID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "job %d had already finished\n", jobID)
			}
			return nil
		},
	}
}

func listCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs known to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := opts.client().ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(jobs))
			for id := range jobs {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, jobs[id])
			}
			return nil
		},
	}
}

func parseJobID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("job id %q is not an integer", s)
	}
	return id, nil
}
