// -- cmd/search.go --
package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/bridge"
	"github.com/xkilldash9x/operant/internal/observability"
	"github.com/xkilldash9x/operant/internal/search"
)

var searchJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// newSearchCmd creates the `search` command: one resilient search through a
// real browser, printed as text or JSON.
func newSearchCmd() *cobra.Command {
	var asJSON bool

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one resilient web search and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			query := strings.Join(args, " ")

			b := bridge.NewBridge(loadedConfig(), logger)
			if err := b.Initialize(ctx); err != nil {
				return fmt.Errorf("starting the browser: %w", err)
			}
			defer teardownBridge(b, logger)

			result, err := b.Search(ctx, b.SearchRequest(query))
			if err != nil {
				var exhausted *search.ExhaustedError
				if errors.As(err, &exhausted) {
					printAttempts(cmd.ErrOrStderr(), exhausted)
				}
				return err
			}

			if asJSON {
				data, err := searchJSON.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	searchCmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	return searchCmd
}

func printResult(w io.Writer, result *schemas.SearchResult) {
	fmt.Fprintf(w, "Results for %q via %s", result.Query, result.EngineUsed)
	if result.TotalResults != "" {
		fmt.Fprintf(w, " (%s)", result.TotalResults)
	}
	fmt.Fprintln(w)

	if result.Featured != nil {
		fmt.Fprintln(w)
		if result.Featured.Title != "" {
			fmt.Fprintf(w, "  %s\n", result.Featured.Title)
		}
		fmt.Fprintf(w, "  %s\n", result.Featured.Content)
		if result.Featured.SourceURL != "" {
			fmt.Fprintf(w, "  -- %s\n", result.Featured.SourceURL)
		}
	}

	for _, organic := range result.Organic {
		fmt.Fprintf(w, "\n%d. %s\n   %s\n", organic.Position, organic.Title, organic.URL)
		if organic.Snippet != "" {
			fmt.Fprintf(w, "   %s\n", organic.Snippet)
		}
	}

	if len(result.RelatedSearches) > 0 {
		fmt.Fprintf(w, "\nRelated: %s\n", strings.Join(result.RelatedSearches, ", "))
	}
}

func printAttempts(w io.Writer, exhausted *search.ExhaustedError) {
	fmt.Fprintf(w, "all engines failed for %q:\n", exhausted.Query)
	for _, attempt := range exhausted.Attempts {
		fmt.Fprintf(w, "  %d. %s: %s", attempt.Ordinal, attempt.Engine, attempt.Outcome)
		if attempt.Detail != "" {
			fmt.Fprintf(w, " (%s)", attempt.Detail)
		}
		fmt.Fprintln(w)
	}
}
