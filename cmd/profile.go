package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShivamLahoty/MemHawk/pkg/config"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the analyst profile attached to full reports",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the analyst profile",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Println("Error loading config:", err)
			return
		}
		if cfg.Profile.Name == "" {
			fmt.Println("No analyst profile set. Reports will carry no attribution.")
			return
		}
		fmt.Println(cfg.Profile.Attribution())
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update analyst profile fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		p := &cfg.Profile
		fields := map[string]*string{
			"name":  &p.Name,
			"org":   &p.Organization,
			"email": &p.Email,
			"phone": &p.Phone,
			"title": &p.Title,
			"certs": &p.Certifications,
			"badge": &p.BadgeNumber,
		}
		for flag, dst := range fields {
			if cmd.Flags().Changed(flag) {
				*dst, _ = cmd.Flags().GetString(flag)
			}
		}
		if cmd.Flags().Changed("include-contact") {
			p.IncludeContactInfo, _ = cmd.Flags().GetBool("include-contact")
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if err := config.SaveConfig(cfg); err != nil {
			return fmt.Errorf("error saving config: %w", err)
		}
		fmt.Println(okStyle.Render("Analyst profile saved."))
		return nil
	},
}

func init() {
	profileSetCmd.Flags().String("name", "", "Analyst name")
	profileSetCmd.Flags().String("org", "", "Organization")
	profileSetCmd.Flags().String("email", "", "Email address")
	profileSetCmd.Flags().String("phone", "", "Phone number")
	profileSetCmd.Flags().String("title", "", "Job title")
	profileSetCmd.Flags().String("certs", "", "Certifications, e.g. \"GCFA, EnCE\"")
	profileSetCmd.Flags().String("badge", "", "Badge or employee id")
	profileSetCmd.Flags().Bool("include-contact", false, "Print email and phone in reports")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}
