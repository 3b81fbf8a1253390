package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"financeflow/internal/analytics"
	"financeflow/internal/cli"
	"financeflow/internal/core"
	"financeflow/internal/report"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull new transactions from the bank feed for every account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			results, err := a.svc.SyncTransactions(ctx, u.ID)
			if err != nil {
				return err
			}
			ids := make([]int64, 0, len(results))
			for id := range results {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

			t := cli.Table{Title: "Sync", Headers: []string{"Account", "Imported"}}
			for _, id := range ids {
				t.Rows = append(t.Rows, []string{strconv.FormatInt(id, 10), strconv.Itoa(results[id])})
			}
			fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(t))
			return nil
		})
	},
}

var importAccount int64

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import a JSON array of transaction records (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readRecords(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		return run(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.ownedAccount(ctx, importAccount); err != nil {
				return err
			}
			res, err := a.svc.ImportTransactions(ctx, importAccount, records)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %d, skipped %d duplicates, rejected %d\n", len(res.Created), res.Skipped, len(res.Rejected))
			for _, ve := range res.Rejected {
				fmt.Fprintf(out, "  %s\n", cli.RenderStatus(false, ve.Error()))
			}
			return nil
		})
	},
}

func readRecords(stdin io.Reader, path string) ([]core.RawRecord, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open records: %w", err)
		}
		defer f.Close()
		r = f
	}
	var records []core.RawRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return records, nil
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Balance, budgets, spending and trend at a glance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			d, err := a.svc.DashboardData(ctx, u.ID)
			if err != nil {
				return err
			}
			renderDashboard(cmd.OutOrStdout(), d, u.Currency)
			return nil
		})
	},
}

func renderDashboard(w io.Writer, d core.Dashboard, currency string) {
	fmt.Fprintln(w, cli.RenderTitle("FINANCEFLOW  Dashboard"))
	fmt.Fprintln(w)

	fmt.Fprint(w, cli.RenderTable(cli.Table{
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Total balance", cli.FormatAmount(d.TotalBalance, currency)},
			{"Avg monthly expense", cli.FormatAmount(d.Insights.AverageMonthlyExpense, currency)},
			{"Budget alerts", strconv.Itoa(len(d.Insights.BudgetAlerts))},
		},
	}))
	healthy := d.Insights.Recommendation.Kind == core.RecommendHealthy
	fmt.Fprintf(w, "  %s\n\n", cli.RenderStatus(healthy, d.Insights.Recommendation.Message))

	if spending := analytics.Ranked(d.SpendingByCategory); len(spending) > 0 {
		t := cli.Table{Title: "Spending  last 30d", Headers: []string{"Category", "Amount"}}
		for _, c := range spending {
			t.Rows = append(t.Rows, []string{string(c.Category), cli.FormatAmount(c.Amount, currency)})
		}
		fmt.Fprint(w, cli.RenderTable(t))
	}

	if len(d.BudgetStatus) > 0 {
		fmt.Fprint(w, cli.RenderTable(budgetTable(d.BudgetStatus, currency)))
	}

	if len(d.BalanceTrend) > 0 {
		t := cli.Table{Title: "Monthly trend", Headers: []string{"Month", "Income", "Expenses", "Net"}}
		nets := make([]float64, 0, len(d.BalanceTrend))
		for _, m := range d.BalanceTrend {
			t.Rows = append(t.Rows, []string{
				m.Month,
				cli.FormatAmount(m.Income, ""),
				cli.FormatAmount(m.Expenses, ""),
				cli.FormatAmount(m.Net, ""),
			})
			nets = append(nets, m.Net)
		}
		fmt.Fprint(w, cli.RenderTable(t))
		fmt.Fprintf(w, "  Net %s\n", cli.RenderSparkline(nets))
	}
}

var reportFlags struct {
	format string
	output string
}

var reportCmd = &cobra.Command{
	Use:   "report YEAR MONTH",
	Short: "Export the monthly report as a table, JSON or CSV",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		year, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid year %q", args[0])
		}
		month, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid month %q", args[1])
		}
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			doc, err := a.svc.MonthlyReport(ctx, u.ID, year, month)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if reportFlags.output != "" {
				f, err := os.Create(reportFlags.output)
				if err != nil {
					return fmt.Errorf("create report file: %w", err)
				}
				defer f.Close()
				out = f
			}

			switch reportFlags.format {
			case "json":
				return report.WriteJSON(out, doc)
			case "csv":
				return report.WriteCSV(out, doc)
			case "table":
				renderReport(out, doc, u.Currency)
				return nil
			default:
				return fmt.Errorf("unsupported format %q", reportFlags.format)
			}
		})
	},
}

func renderReport(w io.Writer, doc report.Document, currency string) {
	fmt.Fprintln(w, cli.RenderTitle("MONTHLY REPORT  "+doc.Period))
	fmt.Fprint(w, cli.RenderTable(cli.Table{
		Headers: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Income", cli.FormatAmount(doc.TotalIncome, currency)},
			{"Expenses", cli.FormatAmount(doc.TotalExpenses, currency)},
			{"Net balance", cli.FormatAmount(doc.NetBalance, currency)},
			{"Transactions", strconv.Itoa(doc.TransactionCount)},
		},
	}))
	if len(doc.Categories) > 0 {
		t := cli.Table{Title: "Expenses by category", Headers: []string{"Category", "Amount"}}
		for _, c := range doc.Categories {
			t.Rows = append(t.Rows, []string{string(c.Category), cli.FormatAmount(c.Amount, currency)})
		}
		fmt.Fprint(w, cli.RenderTable(t))
	}
	fmt.Fprintln(w, cli.RenderMuted("Generated "+doc.GeneratedAt.Format("2006-01-02 15:04 MST")))
}

var monthCmd = &cobra.Command{
	Use:   "month YEAR MONTH",
	Short: "Income, expenses and net of one month",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		year, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid year %q", args[0])
		}
		month, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid month %q", args[1])
		}
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			s, err := a.svc.MonthSnapshot(ctx, u.ID, year, month)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(cli.Table{
				Title:   fmt.Sprintf("%04d-%02d", s.Year, s.Month),
				Headers: []string{"Metric", "Value"},
				Rows: [][]string{
					{"Income", cli.FormatAmount(s.Income, u.Currency)},
					{"Expenses", cli.FormatAmount(s.Expenses, u.Currency)},
					{"Net", cli.FormatAmount(s.Net, u.Currency)},
				},
			}))
			return nil
		})
	},
}

var categoriesDays int

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Expense breakdown by category",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			ca, err := a.svc.CategoryAnalysis(ctx, u.ID, categoriesDays)
			if err != nil {
				return err
			}
			t := cli.Table{
				Title:   fmt.Sprintf("Categories  last %dd", ca.PeriodDays),
				Headers: []string{"Category", "Amount", "Share"},
			}
			for _, c := range ca.Categories {
				share := 0.0
				if ca.TotalSpent > 0 {
					share = c.Amount / ca.TotalSpent * 100
				}
				t.Rows = append(t.Rows, []string{string(c.Category), cli.FormatAmount(c.Amount, u.Currency), cli.FormatPercent(share)})
			}
			t.Rows = append(t.Rows, []string{cli.Separator}, []string{"Total", cli.FormatAmount(ca.TotalSpent, u.Currency), ""})
			fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(t))
			return nil
		})
	},
}

func init() {
	importCmd.Flags().Int64Var(&importAccount, "account", 0, "Account id to import into")
	_ = importCmd.MarkFlagRequired("account")

	reportCmd.Flags().StringVarP(&reportFlags.format, "format", "f", "table", "table, json or csv")
	reportCmd.Flags().StringVarP(&reportFlags.output, "output", "o", "", "Write to file instead of stdout")

	categoriesCmd.Flags().IntVarP(&categoriesDays, "days", "n", 30, "Time window in days")

	rootCmd.AddCommand(syncCmd, importCmd, dashboardCmd, reportCmd, monthCmd, categoriesCmd)
}
