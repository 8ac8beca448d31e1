package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/decision"
	"github.com/capgate-project/capgate/pkg/signals"
)

// NewDecideCmd creates the decide command, a one-shot local evaluation used
// when debugging catalogs and keyword sets.
func NewDecideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide <query>",
		Short: "Evaluate one query locally",
		Long: `Run a single decision against the configured catalog and print the
chosen categories, fallback level and scores.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			asJSON, _ := cmd.Flags().GetBool("json")
			inexperienced, _ := cmd.Flags().GetBool("inexperienced")
			complex, _ := cmd.Flags().GetBool("complex")

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			engine, err := decision.New(cfg)
			if err != nil {
				return err
			}

			d := engine.Decide(&signals.Request{
				Query:          strings.Join(args, " "),
				Inexperienced:  inexperienced,
				HighComplexity: complex,
			})

			if asJSON {
				out, err := json.MarshalIndent(d, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("Level:      %s\n", d.LevelName)
			fmt.Printf("Categories: %s\n", strings.Join(d.Categories, ", "))
			fmt.Printf("Rationale:  %s\n", d.Rationale)
			fmt.Printf("Latency:    %v\n", d.Latency)
			for _, id := range d.Scores.Sorted() {
				fmt.Printf("  %-16s %.3f\n", id, d.Scores[id])
			}
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "Print the full decision as JSON")
	cmd.Flags().Bool("inexperienced", false, "Apply the inexperienced-requester bias")
	cmd.Flags().Bool("complex", false, "Mark the query high-complexity")
	return cmd
}
