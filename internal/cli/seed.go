package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockrush/blockrush/internal/daemon"
	"github.com/blockrush/blockrush/internal/infra/catalog"
)

func init() {
	rootCmd.AddCommand(seedCmd)
}

var seedCmd = &cobra.Command{
	Use:   "seed [catalog.toml]",
	Short: "Load seasons, rewards, challenge templates, achievements and cosmetics",
	Long: `Seed game content from a TOML catalog file. Without a file the
built-in starter catalog is loaded. Entries that already exist are skipped,
so seeding the same file twice is safe.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := catalog.Default()
		if len(args) == 1 {
			var err error
			if c, err = catalog.Load(args[0]); err != nil {
				return err
			}
		}

		d, err := daemon.New(cfg, log)
		if err != nil {
			return err
		}
		defer d.Close()

		sum, err := catalog.Apply(cmd.Context(), catalog.Stores{
			Gamification: d.DB.Gamification(),
			Achievements: d.DB.Achievements(),
			Cosmetics:    d.DB.Cosmetics(),
		}, c, log)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d cosmetics, %d seasons (%d rewards), %d challenge templates, %d achievements\n",
			sum.Cosmetics, sum.Seasons, sum.Rewards, sum.Templates, sum.Achievements)
		return nil
	},
}
