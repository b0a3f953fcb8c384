package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus/carelog/internal/db"
	"github.com/marcus/carelog/internal/serverdb"
	"github.com/marcus/carelog/internal/syncclient"
	"github.com/marcus/carelog/internal/syncconfig"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Short:   "Run diagnostic checks for local data and sync setup",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		runDoctor(cmd.Context())
		return nil
	},
}

func runDoctor(ctx context.Context) {
	// Device identity
	deviceID, err := syncconfig.GetDeviceID()
	if err != nil {
		fmt.Printf("Device id .............. FAIL (%v)\n", err)
	} else {
		fmt.Printf("Device id .............. OK (%s)\n", deviceID)
	}

	// Authority reachable
	serverURL := syncconfig.GetServerURL()
	authority, closeAuthority, err := openAuthority(serverURL)
	if err != nil {
		fmt.Printf("Authority .............. FAIL (%v)\n", err)
	} else {
		if closeAuthority != nil {
			defer closeAuthority()
		}
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		switch v := authority.(type) {
		case *syncclient.Client:
			if _, err := v.HealthCheck(cctx); err != nil {
				fmt.Printf("Authority .............. FAIL (%v)\n", err)
			} else {
				fmt.Printf("Authority .............. OK (%s)\n", serverURL)
			}
		case *serverdb.ServerDB:
			if err := v.Ping(); err != nil {
				fmt.Printf("Authority .............. FAIL (%v)\n", err)
			} else {
				fmt.Printf("Authority .............. OK (local %s)\n", serverURL)
			}
		}
	}

	// Local database
	database, err := db.Open(getBaseDir())
	if err != nil {
		fmt.Printf("Local database ......... FAIL (%v)\n", err)
		fmt.Printf("Caregiver .............. SKIP\n")
		fmt.Printf("Pending operations ..... SKIP\n")
		return
	}
	defer database.Close()
	if database.Rebuilt() {
		fmt.Printf("Local database ......... WARN (rebuilt from corrupt file)\n")
	} else {
		fmt.Printf("Local database ......... OK\n")
	}

	if c, err := database.CurrentCaregiver(); err != nil {
		fmt.Printf("Caregiver .............. FAIL (%v)\n", err)
	} else if c == nil {
		fmt.Printf("Caregiver .............. WARN (none selected; run: carelog caregiver use)\n")
	} else {
		fmt.Printf("Caregiver .............. OK (%s)\n", c.Name)
	}

	if n, err := database.PendingCount(); err != nil {
		fmt.Printf("Pending operations ..... FAIL (%v)\n", err)
	} else {
		fmt.Printf("Pending operations ..... %d\n", n)
	}
	if off, _ := database.Offline(); off {
		fmt.Printf("Mode ................... offline\n")
	}
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
