package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/config"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/service"
)

func expensesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "Manage saved expenses",
		Long:  `List, search, and delete previously confirmed expense records.`,
	}

	cmd.AddCommand(listExpensesCmd())
	cmd.AddCommand(searchExpensesCmd())
	cmd.AddCommand(deleteExpenseCmd())

	return cmd
}

func listExpensesCmd() *cobra.Command {
	var (
		limit int
		days  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved expenses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			filter := service.ExpenseFilter{Limit: limit}
			if days > 0 {
				start := time.Now().AddDate(0, 0, -days)
				filter.StartDate = &start
			}

			expenses, err := store.FetchAll(ctx, filter)
			if err != nil {
				return err
			}
			printExpenses(expenses)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of expenses to show")
	cmd.Flags().IntVar(&days, "days", 0, "only show expenses from the last N days")
	return cmd
}

func searchExpensesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search expenses by title, description, or voice text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			expenses, err := store.Search(ctx, args[0])
			if err != nil {
				return err
			}
			printExpenses(expenses)
			return nil
		},
	}
}

func deleteExpenseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an expense by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid expense id %q: %w", args[0], err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Println("已删除。")
			return nil
		},
	}
}

func printExpenses(expenses []model.ExpenseCandidate) {
	if len(expenses) == 0 {
		fmt.Println("没有符合条件的支出记录。")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	fmt.Fprintln(w, "日期\t金额\t类别\t标题\tID")
	for _, e := range expenses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Date.Format("2006-01-02"),
			e.Amount.StringFixed(2),
			e.Category.Label(),
			e.Title,
			e.ID)
	}
}
