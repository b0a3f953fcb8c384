package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/marcus/carelog/internal/db"
	"github.com/marcus/carelog/internal/models"
	"github.com/marcus/carelog/internal/output"
	"github.com/marcus/carelog/internal/syncconfig"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var caregiverCmd = &cobra.Command{
	Use:     "caregiver",
	Aliases: []string{"cg", "who"},
	Short:   "Manage caregivers and pick who is logging",
	GroupID: "system",
}

var caregiverAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a caregiver",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		if existing, err := database.FindCaregiver(args[0]); err != nil {
			return err
		} else if existing != nil {
			output.Error("caregiver %q already exists", existing.Name)
			return fmt.Errorf("duplicate caregiver")
		}

		deviceID, err := syncconfig.GetDeviceID()
		if err != nil {
			return err
		}
		c, err := database.AddCaregiver(args[0], deviceID)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("Added caregiver %s", c.Name)

		if use, _ := cmd.Flags().GetBool("use"); use {
			if err := database.SetCurrentCaregiver(c.ID); err != nil {
				return err
			}
			fmt.Printf("Now logging as %s\n", c.Name)
		}
		return nil
	},
}

var caregiverListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List caregivers",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		list, err := database.ListCaregivers()
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return output.JSON(list)
		}
		current, _ := database.CurrentCaregiver()
		for _, c := range list {
			marker := "  "
			if current != nil && current.ID == c.ID {
				marker = "* "
			}
			fmt.Printf("%s%s  %s\n", marker, output.ShortID(c.ID), c.Name)
		}
		return nil
	},
}

var caregiverUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Select the caregiver new entries are logged as",
	Long: `Selects the current caregiver by name or id. With no argument on an
interactive terminal, shows a picker.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := db.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer database.Close()

		var chosen *models.Caregiver
		if len(args) == 1 {
			chosen, err = database.FindCaregiver(args[0])
			if err != nil {
				return err
			}
			if chosen == nil {
				output.Error("no caregiver named %q", args[0])
				return fmt.Errorf("caregiver not found")
			}
		} else {
			chosen, err = pickCaregiver(database)
			if err != nil {
				return err
			}
		}

		if err := database.SetCurrentCaregiver(chosen.ID); err != nil {
			return err
		}
		output.Success("Now logging as %s", chosen.Name)
		return nil
	},
}

// pickCaregiver shows an interactive selector of known caregivers.
func pickCaregiver(database *db.DB) (*models.Caregiver, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("caregiver name required when not running interactively")
	}
	list, err := database.ListCaregivers()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no caregivers (run: carelog caregiver add <name>)")
	}

	options := make([]huh.Option[string], len(list))
	for i, c := range list {
		options[i] = huh.NewOption(c.Name, c.ID)
	}
	selected := list[0].ID
	if current, _ := database.CurrentCaregiver(); current != nil {
		selected = current.ID
	}
	if err := huh.NewSelect[string]().
		Title("Who is logging?").
		Options(options...).
		Value(&selected).
		Run(); err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == selected {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("caregiver not found")
}

func init() {
	caregiverAddCmd.Flags().Bool("use", false, "select the new caregiver")
	caregiverListCmd.Flags().Bool("json", false, "output as JSON")

	caregiverCmd.AddCommand(caregiverAddCmd, caregiverListCmd, caregiverUseCmd)
	rootCmd.AddCommand(caregiverCmd)
}
