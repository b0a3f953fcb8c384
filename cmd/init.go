package cmd

import (
	"fmt"
	"os"

	"github.com/marcus/carelog/internal/db"
	"github.com/marcus/carelog/internal/output"
	"github.com/marcus/carelog/internal/syncconfig"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize local carelog data",
	Long:    `Creates the local .carelog directory and SQLite database, and seeds the default caregivers.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()

		if _, err := os.Stat(db.Path(baseDir)); err == nil {
			output.Warning(".carelog/ already exists")
			return nil
		}

		database, err := db.Initialize(baseDir)
		if err != nil {
			output.Error("failed to initialize database: %v", err)
			return err
		}
		defer database.Close()

		deviceID, err := syncconfig.GetDeviceID()
		if err != nil {
			output.Error("device id: %v", err)
			return err
		}

		created, err := database.SeedCaregivers(deviceID)
		if err != nil {
			output.Error("seed caregivers: %v", err)
			return err
		}

		fmt.Println("INITIALIZED .carelog/")
		fmt.Printf("Device: %s\n", deviceID)
		for i, c := range created {
			marker := ""
			if i == 0 {
				marker = " (current)"
			}
			fmt.Printf("Caregiver: %s%s\n", c.Name, marker)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
