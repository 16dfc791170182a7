package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/pgclaw/internal/config"
	"github.com/nextlevelbuilder/pgclaw/internal/service"
)

func statusCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store contents and embedding mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			state, err := service.New(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer state.Close()

			health := state.Health(cmd.Context())
			counts := state.Memory.Status(cmd.Context())

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"health": health,
					"counts": counts,
				})
			}

			fmt.Printf("pgclaw status: %s\n", health.Status)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "  Schema version\t%s\n", health.SchemaVersion)
			fmt.Fprintf(w, "  Embedding mode\t%s\n", health.EmbeddingMode)
			fmt.Fprintf(w, "  Embedding model\t%s\n", health.Model)
			fmt.Fprintf(w, "  Pool\t%d open / %d max\n", health.Pool.Open, health.Pool.Max)
			fmt.Fprintf(w, "  Chunks\t%d\n", counts.ChunkCount)
			fmt.Fprintf(w, "  Files\t%d\n", counts.FileCount)
			fmt.Fprintf(w, "  Memories\t%d\n", counts.MemoryCount)
			fmt.Fprintf(w, "  Cache entries\t%d\n", counts.CacheCount)
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
