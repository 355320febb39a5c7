package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"campaignkb/internal/search"
)

func newSearchCmd(deps *cliDeps) *cobra.Command {
	var (
		campaignID    string
		limit         int
		vectorWeight  float64
		keywordWeight float64
		expand        bool
		expandWindow  int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a hybrid vector+keyword search against a campaign's index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := args[0]

			chunks, err := deps.openChunkStore(ctx)
			if err != nil {
				return fmt.Errorf("open chunk store: %w", err)
			}

			engine := search.NewHybridEngine(newHybridSearcher(chunks), mustEmbedder(deps.cfg), 0)
			results, err := engine.Search(ctx, query, campaignID, search.HybridOptions{
				Limit:         limit,
				VectorWeight:  vectorWeight,
				KeywordWeight: keywordWeight,
			})
			if err != nil {
				return fmt.Errorf("hybrid search: %w", err)
			}

			if expand {
				results = search.NewNeighborExpander(chunks, expandWindow).Expand(ctx, results)
			}

			if len(results) == 0 {
				pterm.Info.Println("no results")
				return nil
			}

			rows := pterm.TableData{{"score", "document", "chunk", "excerpt"}}
			for _, r := range results {
				excerpt := r.Chunk.Content
				if len(excerpt) > 120 {
					excerpt = excerpt[:120] + "..."
				}
				rows = append(rows, []string{
					fmt.Sprintf("%.4f", r.Score),
					r.Document.DisplayName,
					fmt.Sprintf("%d", r.Chunk.ChunkIndex),
					strings.ReplaceAll(excerpt, "\n", " "),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}

	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id to search within (required)")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	cmd.Flags().Float64Var(&vectorWeight, "vector-weight", 0.5, "weight given to vector similarity in fusion")
	cmd.Flags().Float64Var(&keywordWeight, "keyword-weight", 0.5, "weight given to keyword relevance in fusion")
	cmd.Flags().BoolVar(&expand, "expand", false, "expand results with adjacent-chunk context")
	cmd.Flags().IntVar(&expandWindow, "expand-window", search.DefaultNeighborWindow, "neighbors fetched on each side when --expand is set")
	_ = cmd.MarkFlagRequired("campaign")

	return cmd
}
