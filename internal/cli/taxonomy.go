package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/shadowscore/internal/taxonomy"
)

var taxonomyYAML bool

// taxonomyCmd represents the taxonomy command
var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Inspect the vulnerability category taxonomy",
}

var taxonomyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active taxonomy",
	Long: `Show the categories findings are normalized onto. The embedded default
is used unless taxonomy.path points at a YAML file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tax, err := taxonomy.LoadOrDefault(cfg.Taxonomy.Path)
		if err != nil {
			return fmt.Errorf("load taxonomy: %w", err)
		}

		if taxonomyYAML {
			data, err := yaml.Marshal(tax)
			if err != nil {
				return fmt.Errorf("error marshaling taxonomy: %w", err)
			}
			fmt.Print(string(data))
			return nil
		}

		source := cfg.Taxonomy.Path
		if source == "" {
			source = "embedded default"
		}
		fmt.Fprintf(os.Stderr, "Taxonomy %s (%s), %d categories\n\n", tax.Version, source, len(tax.Categories))

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tALIASES")
		for _, c := range tax.Categories {
			fmt.Fprintf(tw, "%s\t%s\n", c.ID, strings.Join(c.Aliases, ", "))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(taxonomyCmd)
	taxonomyCmd.AddCommand(taxonomyShowCmd)

	taxonomyShowCmd.Flags().BoolVar(&taxonomyYAML, "yaml", false, "print the taxonomy as YAML")
}
