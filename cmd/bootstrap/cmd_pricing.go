package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"llm-gateway/internal/domain/entity"
	"llm-gateway/internal/wire"
)

var pricingFlags struct {
	model         string
	input         float64
	output        float64
	image         float64
	audio         float64
	video         float64
	effectiveFrom string
}

func init() {
	rootCmd.AddCommand(seedPricingCmd)
	f := seedPricingCmd.Flags()
	f.StringVar(&pricingFlags.model, "model", "", "model id as stored on threads")
	f.Float64Var(&pricingFlags.input, "input", 0, "USD per million input tokens")
	f.Float64Var(&pricingFlags.output, "output", 0, "USD per million output tokens")
	f.Float64Var(&pricingFlags.image, "image", 0, "USD per million image tokens (0 uses input price)")
	f.Float64Var(&pricingFlags.audio, "audio", 0, "USD per million audio tokens (0 uses input price)")
	f.Float64Var(&pricingFlags.video, "video", 0, "USD per million video tokens (0 uses input price)")
	f.StringVar(&pricingFlags.effectiveFrom, "effective-from", "", "RFC3339 start time, defaults to now")
	_ = seedPricingCmd.MarkFlagRequired("model")
}

var seedPricingCmd = &cobra.Command{
	Use:   "seed-pricing",
	Short: "Insert a model pricing row",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pricing, err := pricingFromFlags(time.Now())
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		data, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init data layer: %w", err)
		}
		defer cleanup()

		if err := data.PricingRepo.Create(ctx, pricing); err != nil {
			return fmt.Errorf("create pricing: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pricing for %s effective from %s\n", pricing.ModelName, pricing.EffectiveFrom.Format(time.RFC3339))
		return nil
	},
}

func pricingFromFlags(now time.Time) (*entity.ModelPricing, error) {
	model := strings.TrimSpace(pricingFlags.model)
	if model == "" {
		return nil, fmt.Errorf("--model is required")
	}
	if pricingFlags.input < 0 || pricingFlags.output < 0 || pricingFlags.image < 0 || pricingFlags.audio < 0 || pricingFlags.video < 0 {
		return nil, fmt.Errorf("prices must not be negative")
	}

	effective := now
	if pricingFlags.effectiveFrom != "" {
		t, err := time.Parse(time.RFC3339, pricingFlags.effectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("invalid --effective-from: %w", err)
		}
		effective = t
	}

	return &entity.ModelPricing{
		ModelName:            model,
		InputPerMillion:      pricingFlags.input,
		OutputPerMillion:     pricingFlags.output,
		ImageInputPerMillion: optionalPrice(pricingFlags.image),
		AudioInputPerMillion: optionalPrice(pricingFlags.audio),
		VideoInputPerMillion: optionalPrice(pricingFlags.video),
		EffectiveFrom:        effective,
	}, nil
}

func optionalPrice(v float64) *float64 {
	if v <= 0 {
		return nil
	}
	return &v
}
