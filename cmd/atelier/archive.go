package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/atelier/internal/archive"
	archivedomain "github.com/smallbiznis/atelier/internal/archive/domain"
	"github.com/smallbiznis/atelier/internal/clock"
	"github.com/smallbiznis/atelier/internal/config"
	"github.com/smallbiznis/atelier/internal/logger"
	"github.com/smallbiznis/atelier/internal/metrics"
	"github.com/smallbiznis/atelier/internal/migration"
	"github.com/smallbiznis/atelier/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <year>",
	Short: "Archive a fully elapsed fiscal year",
	Long: `Aggregate all not-yet-archived invoices and expenses of the given
fiscal year into a locked archive record and tag them as archived.

The year must be fully elapsed and not archived yet, and a company
profile must be configured. Use --dry-run to see the would-be totals
without writing anything.`,
	Example: `  # Preview the totals for fiscal year 2024
  atelier archive 2024 --dry-run

  # Archive 2024 without the confirmation prompt
  atelier archive 2024 --force --user jean`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().Bool("dry-run", false, "Aggregate and report without writing anything")
	archiveCmd.Flags().Bool("force", false, "Skip the confirmation prompt")
	archiveCmd.Flags().String("user", "", "Name recorded as the archiving actor")
	archiveCmd.Flags().String("notes", "", "Notes stored on the archive record")
}

func runArchive(cmd *cobra.Command, args []string) error {
	year, err := strconv.Atoi(args[0])
	if err != nil || year <= 0 {
		return fmt.Errorf("invalid year %q", args[0])
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	force, _ := cmd.Flags().GetBool("force")
	user, _ := cmd.Flags().GetString("user")
	notes, _ := cmd.Flags().GetString("notes")

	var (
		svc    archivedomain.Service
		holder *config.ArchivePolicyHolder
	)
	app := fx.New(
		fx.NopLogger,
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		metrics.Module,
		archive.Module,
		fx.Populate(&svc, &holder),
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(ctx) }()

	policy := holder.Current()
	if notes == "" {
		notes = policy.DefaultNotes
	}

	if policy.RequireConfirmation && !force && !dryRun {
		if !confirm(fmt.Sprintf("Archive fiscal year %d? This locks the year permanently. [y/N]: ", year)) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	summary, err := svc.Run(ctx, archivedomain.Request{
		Year:   year,
		DryRun: dryRun,
		Actor:  archivedomain.Actor{Name: user},
		Notes:  &notes,
	})
	if err != nil {
		return err
	}

	printSummary(summary, policy.Currency)
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printSummary(s archivedomain.Summary, currency string) {
	header := fmt.Sprintf("Fiscal year %d", s.FiscalYear)
	if s.DryRun {
		header += " (dry run)"
	}
	fmt.Println(header)
	fmt.Printf("  Period:        %s to %s\n",
		s.PeriodStart.Format("2006-01-02"), s.PeriodEnd.Format("2006-01-02"))
	fmt.Printf("  Invoices:      %d\n", s.InvoiceCount)
	fmt.Printf("  Expenses:      %d\n", s.ExpenseCount)
	fmt.Printf("  Revenue:       %s %s\n", s.TotalRevenue.StringFixed(2), currency)
	fmt.Printf("  Spent:         %s %s\n", s.TotalSpent.StringFixed(2), currency)
	fmt.Printf("  Net profit:    %s %s\n", s.NetProfit.StringFixed(2), currency)
	fmt.Printf("  GST collected: %s  paid: %s  net: %s\n",
		s.GSTCollected.StringFixed(2), s.GSTPaid.StringFixed(2), s.GSTNet.StringFixed(2))
	fmt.Printf("  QST collected: %s  paid: %s  net: %s\n",
		s.QSTCollected.StringFixed(2), s.QSTPaid.StringFixed(2), s.QSTNet.StringFixed(2))
}
