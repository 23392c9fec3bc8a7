package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesisdesk/thesisdesk/pricing"
)

func newQuoteCommand(ctx *commandContext) *cobra.Command {
	var (
		words    int
		level    string
		workType string
		urgency  string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a chapter with the configured per-page rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := pricing.Request{
				TargetWordCount: words,
				Level:           pricing.Level(level),
				WorkType:        pricing.WorkType(workType),
				Urgency:         pricing.Urgency(urgency),
			}
			if err := req.Validate(true); err != nil {
				return err
			}
			snap, err := pricing.NewCalculator(ctx.config.PricePerPage()).Quote(req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			m := snap.Multipliers
			fmt.Fprintf(out, "pages:       %d x %s = %s\n", snap.Pages, snap.PricePerPage, snap.BasePrice)
			fmt.Fprintf(out, "multipliers: urgency %s, level %s, work type %s\n", m.Urgency, m.Level, m.WorkType)
			fmt.Fprintf(out, "total:       %s\n", snap.TotalPrice)
			return nil
		},
	}

	cmd.Flags().IntVarP(&words, "words", "w", 0, "Target word count")
	cmd.Flags().StringVar(&level, "level", string(pricing.LevelMasters), "Academic level (masters, phd)")
	cmd.Flags().StringVar(&workType, "type", string(pricing.WorkCoursework), "Work type (coursework, revision, statistics)")
	cmd.Flags().StringVar(&urgency, "urgency", string(pricing.UrgencyNormal), "Urgency (normal, urgent, very_urgent)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the pricing snapshot as JSON")
	_ = cmd.MarkFlagRequired("words")

	return cmd
}
