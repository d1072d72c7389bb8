package main

import (
	"fmt"
	"time"

	"github.com/lgu-eportal/rptpay/internal/models"
	"github.com/lgu-eportal/rptpay/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type seedOptions struct {
	applicationID int64
	tdn           string
	address       string
	owner         string
	year          int
	assessedValue string
	annualTax     string
	overdue       int
	fullYear      bool
}

func seedCmd() *cobra.Command {
	opts := seedOptions{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo assessment with unpaid quarters",
		Long: `Create a property tax assessment with its quarter rows.

The annual tax is split evenly across four quarters, with the last quarter
absorbing any rounding remainder. The first --overdue quarters are marked
overdue. With --full-year a single aggregate row is created instead.

Examples:
  portalctl seed --application-id 1001 --tdn TD-2026-00123
  portalctl seed --application-id 1002 --annual-tax 4850.75 --overdue 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			assessment, quarters, err := buildAssessment(opts)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, log, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := repository.NewQuarterRepository(db)
			if err := repo.CreateAssessment(ctx, assessment, quarters); err != nil {
				return fmt.Errorf("failed to seed assessment: %w", err)
			}

			log.Info("Assessment seeded", map[string]interface{}{
				"assessment_id":  assessment.ID,
				"application_id": assessment.ApplicationID,
				"quarter_count":  len(quarters),
			})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "assessment %d (application %d, TDN %s)\n", assessment.ID, assessment.ApplicationID, assessment.TDN)
			for _, q := range quarters {
				fmt.Fprintf(out, "  quarter %d  id=%d  %s  %s  due %s\n",
					q.Quarter, q.ID, q.AmountDue.StringFixed(2), q.Status, q.DueDate.Format("2006-01-02"))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.applicationID, "application-id", 0, "portal application id (required)")
	cmd.Flags().StringVar(&opts.tdn, "tdn", "TD-DEMO-0001", "tax declaration number")
	cmd.Flags().StringVar(&opts.address, "address", "Lot 1 Blk 1, Poblacion", "property address")
	cmd.Flags().StringVar(&opts.owner, "owner", "Juan Dela Cruz", "registered owner")
	cmd.Flags().IntVar(&opts.year, "year", time.Now().Year(), "assessment year")
	cmd.Flags().StringVar(&opts.assessedValue, "assessed-value", "250000.00", "assessed value")
	cmd.Flags().StringVar(&opts.annualTax, "annual-tax", "2500.00", "annual tax due")
	cmd.Flags().IntVar(&opts.overdue, "overdue", 0, "number of leading quarters to mark overdue")
	cmd.Flags().BoolVar(&opts.fullYear, "full-year", false, "create a single full-year row instead of four quarters")
	_ = cmd.MarkFlagRequired("application-id")

	return cmd
}

// buildAssessment turns seed options into an assessment and its quarter rows.
func buildAssessment(opts seedOptions) (*models.PropertyTaxAssessment, []models.TaxQuarter, error) {
	if opts.applicationID <= 0 {
		return nil, nil, fmt.Errorf("application id must be positive")
	}

	assessed, err := decimal.NewFromString(opts.assessedValue)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid assessed value %q: %w", opts.assessedValue, err)
	}
	annual, err := decimal.NewFromString(opts.annualTax)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid annual tax %q: %w", opts.annualTax, err)
	}
	if !annual.IsPositive() {
		return nil, nil, fmt.Errorf("annual tax must be positive")
	}

	assessment := &models.PropertyTaxAssessment{
		ApplicationID:   opts.applicationID,
		TDN:             opts.tdn,
		PropertyAddress: opts.address,
		OwnerName:       opts.owner,
		AssessmentYear:  opts.year,
		AssessedValue:   assessed,
		AnnualTax:       annual,
	}

	if opts.fullYear {
		q := models.TaxQuarter{
			Quarter:   models.FullYearQuarter,
			AmountDue: annual.Round(2),
			Status:    models.StatusUnpaid,
			DueDate:   time.Date(opts.year, time.March, 31, 0, 0, 0, 0, time.UTC),
		}
		if opts.overdue > 0 {
			q.Status = models.StatusOverdue
		}
		return assessment, []models.TaxQuarter{q}, nil
	}

	return assessment, splitQuarters(annual, opts.year, opts.overdue), nil
}

// quarterDueMonths are the installment deadlines: the last day of each
// calendar quarter.
var quarterDueMonths = [4]time.Month{time.March, time.June, time.September, time.December}

// splitQuarters divides the annual tax into four installments.
func splitQuarters(annual decimal.Decimal, year, overdue int) []models.TaxQuarter {
	share := annual.Div(decimal.NewFromInt(4)).RoundDown(2)
	remainder := annual.Round(2).Sub(share.Mul(decimal.NewFromInt(3)))

	quarters := make([]models.TaxQuarter, 0, 4)
	for i, month := range quarterDueMonths {
		amount := share
		if i == 3 {
			amount = remainder
		}
		status := models.StatusUnpaid
		if i < overdue {
			status = models.StatusOverdue
		}
		quarters = append(quarters, models.TaxQuarter{
			Quarter:   i + 1,
			AmountDue: amount,
			Status:    status,
			// Day zero of the next month is the last day of this one
			DueDate: time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC),
		})
	}
	return quarters
}
