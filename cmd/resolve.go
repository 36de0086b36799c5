package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartcompare/compare-cli/internal/model"
	"github.com/smartcompare/compare-cli/internal/resolve"
)

var (
	resolveName     string
	resolveBrand    string
	resolveVariant  string
	resolveCategory string
	resolveRegion   string
	resolveNoCache  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a single product record",
	Long:  "Resolves the price, rating and spec sheet for one product without drafting a verdict.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "compare")
		if err != nil {
			return err
		}
		defer env.Close()

		region := resolveRegion
		if region == "" {
			region = cfg.Resolve.Region
		}

		q := model.ProductQuery{
			Name:     resolveName,
			Brand:    resolveBrand,
			Variant:  resolveVariant,
			Category: resolveCategory,
		}

		rec, usage, err := env.Pipeline.ResolveProduct(ctx, q, resolve.Options{
			Region:      region,
			BypassCache: resolveNoCache,
		})
		if err != nil {
			return eris.Wrapf(err, "resolve %s", q.FullName())
		}

		zap.L().Info("resolution complete",
			zap.String("product", q.FullName()),
			zap.Float64("confidence", rec.Confidence),
			zap.Int("search_calls", usage.SearchCalls),
			zap.Int("cache_hits", usage.CacheHits),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveName, "name", "", "product name (required)")
	resolveCmd.Flags().StringVar(&resolveBrand, "brand", "", "product brand")
	resolveCmd.Flags().StringVar(&resolveVariant, "variant", "", "variant, e.g. \"256GB\"")
	resolveCmd.Flags().StringVar(&resolveCategory, "category", "", "category for the spec schema")
	resolveCmd.Flags().StringVar(&resolveRegion, "region", "", "region code (default from config)")
	resolveCmd.Flags().BoolVar(&resolveNoCache, "no-cache", false, "bypass cached facets and refresh from sources")
	_ = resolveCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(resolveCmd)
}
