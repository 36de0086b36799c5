package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartcompare/compare-cli/internal/resolve"
)

var (
	compareRegion  string
	compareNoCache bool
)

var compareCmd = &cobra.Command{
	Use:   "compare <query>",
	Short: "Compare two products head to head",
	Long:  `Resolves both products named in a free-text request ("iphone 15 vs galaxy s24") and prints the comparison with a drafted verdict.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "compare")
		if err != nil {
			return err
		}
		defer env.Close()

		region := compareRegion
		if region == "" {
			region = cfg.Resolve.Region
		}

		query := strings.Join(args, " ")
		result, err := env.Pipeline.Compare(ctx, query, resolve.Options{
			Region:      region,
			BypassCache: compareNoCache,
		})
		if err != nil {
			if eris.Is(err, resolve.ErrNotAComparison) {
				return eris.New("the request must name two products, e.g. \"iphone 15 vs galaxy s24\"")
			}
			return eris.Wrap(err, "compare")
		}

		zap.L().Info("comparison complete",
			zap.String("query", query),
			zap.Int("winner_index", result.Verdict.WinnerIndex),
			zap.Int("search_calls", result.Usage.SearchCalls),
			zap.Int("model_calls", result.Usage.ModelCalls),
			zap.Int("cache_hits", result.Usage.CacheHits),
			zap.Int64("elapsed_ms", result.Usage.ElapsedMS),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareRegion, "region", "", "region code (default from config)")
	compareCmd.Flags().BoolVar(&compareNoCache, "no-cache", false, "bypass cached facets and refresh from sources")
	rootCmd.AddCommand(compareCmd)
}
