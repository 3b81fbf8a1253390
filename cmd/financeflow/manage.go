package main

import (
	"context"
	"fmt"
	"strconv"

	"financeflow/internal/cli"
	"financeflow/internal/core"
	"financeflow/internal/importer"
	"financeflow/internal/services"

	"github.com/spf13/cobra"
)

// ===================== Users =====================

var userFlags struct {
	email    string
	fullName string
}

var userCmd = &cobra.Command{Use: "user", Short: "Manage users"}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register the --user with --password",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.svc.CreateUser(ctx, services.NewUser{
				Username: flagUser,
				Email:    userFlags.email,
				Password: password(),
				FullName: userFlags.fullName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", u.Username, u.ID)
			return nil
		})
	},
}

// ===================== Accounts =====================

var accountFlags struct {
	name       string
	number     string
	bank       string
	balance    float64
	currency   string
	externalID string
	token      string
}

var accountCmd = &cobra.Command{Use: "account", Short: "Manage accounts"}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an account, optionally linked to the bank feed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			acct, err := a.svc.AddAccount(ctx, u.ID, services.NewAccount{
				Name:          accountFlags.name,
				AccountNumber: accountFlags.number,
				BankName:      accountFlags.bank,
				Balance:       accountFlags.balance,
				Currency:      accountFlags.currency,
				ExternalID:    accountFlags.externalID,
			})
			if err != nil {
				return err
			}
			if accountFlags.externalID != "" && accountFlags.token != "" {
				if acct, err = a.svc.LinkAccount(ctx, acct.ID, accountFlags.externalID, accountFlags.token); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added account %q (id %d, number %s)\n", acct.Name, acct.ID, acct.AccountNumber)
			return nil
		})
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			accounts, err := a.svc.ListAccounts(ctx, u.ID)
			if err != nil {
				return err
			}
			t := cli.Table{Title: "Accounts", Headers: []string{"ID", "Name", "Number", "Bank", "Balance", "Linked"}}
			total := 0.0
			for _, acct := range accounts {
				linked := "no"
				if acct.ExternalID != "" {
					linked = acct.ExternalID
				}
				t.Rows = append(t.Rows, []string{
					strconv.FormatInt(acct.ID, 10),
					acct.Name,
					acct.AccountNumber,
					acct.BankName,
					cli.FormatAmount(acct.Balance, acct.Currency),
					linked,
				})
				total += acct.Balance
			}
			if len(accounts) > 0 {
				t.Rows = append(t.Rows, []string{cli.Separator}, []string{"Total", "", "", "", cli.FormatAmount(total, u.Currency), ""})
			}
			fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(t))
			return nil
		})
	},
}

var accountSummaryCmd = &cobra.Command{
	Use:   "summary ID YEAR MONTH",
	Short: "Income and expenses of one account over a month",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		nums := make([]int64, len(args))
		for i, arg := range args {
			n, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid argument %q", arg)
			}
			nums[i] = n
		}
		return run(cmd, func(ctx context.Context, a *app) error {
			acct, err := a.ownedAccount(ctx, nums[0])
			if err != nil {
				return err
			}
			s, err := a.svc.Engine().AccountMonthlySummary(ctx, acct.ID, int(nums[1]), int(nums[2]))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(cli.Table{
				Title:   fmt.Sprintf("%s  %s", acct.Name, s.Period),
				Headers: []string{"Metric", "Value"},
				Rows: [][]string{
					{"Income", cli.FormatAmount(s.Income, acct.Currency)},
					{"Expenses", cli.FormatAmount(s.Expenses, acct.Currency)},
					{"Net", cli.FormatAmount(s.Net, acct.Currency)},
					{"Transactions", strconv.Itoa(s.TransactionCount)},
				},
			}))
			return nil
		})
	},
}

// ===================== Budgets =====================

var budgetCmd = &cobra.Command{Use: "budget", Short: "Manage category budgets"}

var budgetSetCmd = &cobra.Command{
	Use:   "set CATEGORY LIMIT",
	Short: "Set the monthly limit of a category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := core.ParseAmount(args[1])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			b, err := a.svc.SetBudget(ctx, u.ID, args[0], limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Budget for %s set to %s\n", b.Category, cli.FormatAmount(b.MonthlyLimit, u.Currency))
			return nil
		})
	},
}

var budgetListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show budgets and this month's consumption",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			statuses, err := a.svc.Engine().BudgetStatus(ctx, u.ID)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(budgetTable(statuses, u.Currency)))
			return nil
		})
	},
}

func budgetTable(statuses []core.BudgetStatus, currency string) cli.Table {
	t := cli.Table{Title: "Budgets", Headers: []string{"Category", "Limit", "Spent", "Remaining", "Used", ""}}
	for _, s := range statuses {
		t.Rows = append(t.Rows, []string{
			string(s.Category),
			cli.FormatAmount(s.Limit, currency),
			cli.FormatAmount(s.Spent, currency),
			cli.FormatAmount(s.Remaining, currency),
			cli.FormatPercent(s.Percentage),
			cli.RenderBudgetBar(s.Percentage, 12),
		})
	}
	return t
}

// ===================== Transactions =====================

var txFlags struct {
	account     int64
	days        int
	amount      string
	typ         string
	category    string
	description string
	merchant    string
	date        string
}

var txCmd = &cobra.Command{Use: "tx", Short: "Manage transactions"}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent transactions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			u, err := a.login(ctx)
			if err != nil {
				return err
			}
			var accountID *int64
			if txFlags.account > 0 {
				accountID = &txFlags.account
			}
			txs, err := a.svc.ListTransactions(ctx, u.ID, accountID, txFlags.days)
			if err != nil {
				return err
			}
			t := cli.Table{
				Title:   fmt.Sprintf("Transactions  last %dd", txFlags.days),
				Headers: []string{"Date", "ID", "Account", "Type", "Category", "Description", "Amount"},
			}
			for _, tx := range txs {
				t.Rows = append(t.Rows, []string{
					cli.FormatDate(tx.Date),
					strconv.FormatInt(tx.ID, 10),
					strconv.FormatInt(tx.AccountID, 10),
					string(tx.Type),
					string(tx.Category),
					cli.Truncate(tx.Description, 32),
					cli.FormatAmount(tx.Amount, ""),
				})
			}
			if len(txs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderMuted("No transactions in the selected window."))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), cli.RenderTable(t))
			return nil
		})
	},
}

var txAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a manual transaction",
	RunE: func(cmd *cobra.Command, _ []string) error {
		amount, err := core.ParseAmount(txFlags.amount)
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		in := services.NewTransaction{
			Description: txFlags.description,
			Amount:      amount,
			Type:        txFlags.typ,
			Category:    txFlags.category,
			Merchant:    txFlags.merchant,
		}
		if txFlags.date != "" {
			d, err := importer.ParseDate(txFlags.date)
			if err != nil {
				return err
			}
			in.Date = d
		}
		return run(cmd, func(ctx context.Context, a *app) error {
			if _, err := a.ownedAccount(ctx, txFlags.account); err != nil {
				return err
			}
			tx, err := a.svc.CreateTransaction(ctx, txFlags.account, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded transaction %d: %s %s %s\n",
				tx.ID, tx.Type, tx.Category, cli.FormatAmount(tx.Amount, ""))
			return nil
		})
	},
}

var txDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[0], err)
		}
		return run(cmd, func(ctx context.Context, a *app) error {
			tx, err := a.svc.GetTransaction(ctx, id)
			if err != nil {
				return err
			}
			if _, err := a.ownedAccount(ctx, tx.AccountID); err != nil {
				return core.NewNotFound("transaction", id)
			}
			if _, err := a.svc.DeleteTransaction(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted transaction %d\n", id)
			return nil
		})
	},
}

// ownedAccount logs in and checks that accountID belongs to the user.
func (a *app) ownedAccount(ctx context.Context, accountID int64) (core.Account, error) {
	u, err := a.login(ctx)
	if err != nil {
		return core.Account{}, err
	}
	acct, err := a.svc.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, err
	}
	if acct.UserID != u.ID {
		return core.Account{}, core.NewNotFound("account", accountID)
	}
	return acct, nil
}

func init() {
	userCreateCmd.Flags().StringVar(&userFlags.email, "email", "", "Email address")
	userCreateCmd.Flags().StringVar(&userFlags.fullName, "full-name", "", "Full name")
	userCmd.AddCommand(userCreateCmd)

	f := accountAddCmd.Flags()
	f.StringVar(&accountFlags.name, "name", "", "Account name")
	f.StringVar(&accountFlags.number, "number", "", "Account number (generated when empty)")
	f.StringVar(&accountFlags.bank, "bank", "", "Bank name")
	f.Float64Var(&accountFlags.balance, "balance", 0, "Opening balance")
	f.StringVar(&accountFlags.currency, "currency", "", "Currency code (default from config)")
	f.StringVar(&accountFlags.externalID, "external-id", "", "Provider account id to sync from")
	f.StringVar(&accountFlags.token, "token", "", "Provider access token")
	_ = accountAddCmd.MarkFlagRequired("name")
	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountSummaryCmd)

	budgetCmd.AddCommand(budgetSetCmd, budgetListCmd)

	txListCmd.Flags().Int64Var(&txFlags.account, "account", 0, "Restrict to one account")
	txListCmd.Flags().IntVarP(&txFlags.days, "days", "n", 30, "Time window in days (0 for all)")
	f = txAddCmd.Flags()
	f.Int64Var(&txFlags.account, "account", 0, "Account id")
	f.StringVar(&txFlags.amount, "amount", "", "Amount, dot or comma decimals")
	f.StringVar(&txFlags.typ, "type", "", "Income, Expense or Transfer (default Expense)")
	f.StringVar(&txFlags.category, "category", "", "Category (default Other)")
	f.StringVar(&txFlags.description, "description", "", "Description")
	f.StringVar(&txFlags.merchant, "merchant", "", "Merchant")
	f.StringVar(&txFlags.date, "date", "", "Date, YYYY-MM-DD or RFC 3339 (default now)")
	_ = txAddCmd.MarkFlagRequired("account")
	_ = txAddCmd.MarkFlagRequired("amount")
	txCmd.AddCommand(txListCmd, txAddCmd, txDeleteCmd)

	rootCmd.AddCommand(userCmd, accountCmd, budgetCmd, txCmd)
}
