package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"civicbot/config"
	"civicbot/internal/app"
	"civicbot/internal/civic"
	"civicbot/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "civicbot",
		Short: "Community issue reporting bot",
		Long: `civicbot receives civic issue reports over a messaging webhook or an
inbox directory, classifies them, and tracks them for city departments.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	rootCmd.AddCommand(serveCmd(), replayCmd(), statsCmd(), exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadApp() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and inbox watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()
	if err := a.Run(ctx); err != nil {
		return err
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Close(closeCtx)
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <dir>",
		Short: "Process pending message files from a directory and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := a.ReplayInbox(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("replayed %d message(s): %d processed, %d dropped\n", s.Candidates, s.Enqueued, s.Dropped)
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return a.Close(closeCtx)
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print report statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			st, err := a.Reports().Stats(cmd.Context())
			if err != nil {
				return err
			}

			bold := color.New(color.Bold)
			bold.Println("Report statistics")
			fmt.Printf("  total:        %d\n", st.Total)
			fmt.Printf("  resolved:     %s\n", color.New(color.FgGreen).Sprint(st.Resolved))
			fmt.Printf("  with image:   %d\n", st.WithImage)
			fmt.Printf("  last 7 days:  %d\n", st.ReportsLast7Days)
			if st.AvgResolutionDays > 0 {
				fmt.Printf("  avg resolve:  %.1f days\n", st.AvgResolutionDays)
			}

			printDistribution("By status", st.StatusDistribution)
			printDistribution("By issue type", st.IssueTypeDistribution)
			printDistribution("By department", st.DepartmentDistribution)

			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return a.Close(closeCtx)
		},
	}
}

func printDistribution(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	color.New(color.Bold).Println(title)
	for _, k := range keys {
		fmt.Printf("  %-16s %d\n", k, counts[k])
	}
}

func exportCmd() *cobra.Command {
	var status, issueType string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write reports as CSV to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			list, _, err := a.Reports().List(cmd.Context(), store.Filter{Status: civic.Status(status), IssueType: civic.IssueType(issueType)}, 1, 10000)
			if err != nil {
				return err
			}

			cw := csv.NewWriter(os.Stdout)
			cw.Write([]string{"id", "issue_type", "description", "location", "department", "status", "priority", "created_at"})
			for i := range list {
				r := &list[i]
				cw.Write([]string{
					strconv.FormatInt(r.ID, 10),
					string(r.IssueType),
					r.Description,
					r.LocationText,
					r.Department,
					string(r.Status),
					string(r.Priority),
					r.CreatedAt.Format(time.RFC3339),
				})
			}
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return a.Close(closeCtx)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&issueType, "issue-type", "", "filter by issue type")
	return cmd
}

