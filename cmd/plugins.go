package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShivamLahoty/MemHawk/pkg/catalog"
	"github.com/ShivamLahoty/MemHawk/pkg/config"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the Volatility plugins MemHawk knows about",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		cat, err := loadCatalog(cfg)
		if err != nil {
			return err
		}
		search, _ := cmd.Flags().GetString("search")
		category, _ := cmd.Flags().GetString("category")
		c := catalog.Category(category)
		if category != "" && !c.Valid() {
			return fmt.Errorf("unknown category %q", category)
		}

		tasks := cat.Filter(search, c)
		if len(tasks) == 0 {
			fmt.Println("No plugins match.")
			return nil
		}
		quick := make(map[string]bool)
		for _, id := range catalog.QuickScan() {
			quick[id] = true
		}

		for _, group := range cat.Groups() {
			var rows []catalog.Task
			for _, t := range tasks {
				if t.Group == group {
					rows = append(rows, t)
				}
			}
			if len(rows) == 0 {
				continue
			}
			fmt.Println(titleStyle.Render(group))
			for _, t := range rows {
				mark := " "
				if quick[t.ID] {
					mark = okStyle.Render("*")
				}
				line := fmt.Sprintf(" %s %-32s %s", mark, t.ID, t.Description)
				if t.Skip {
					line += warnStyle.Render(" (needs parameters, demo data only)")
				}
				fmt.Println(line)
			}
			fmt.Println()
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d plugins; * = quick scan", len(tasks))))
		return nil
	},
}

func init() {
	pluginsCmd.Flags().StringP("search", "s", "", "Filter by id, name, description or group")
	pluginsCmd.Flags().StringP("category", "c", "", "Filter by category")
	rootCmd.AddCommand(pluginsCmd)
}
