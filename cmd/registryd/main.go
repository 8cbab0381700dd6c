// Command registryd serves the registry's REST front door and offers
// operator sub-commands for schema management, in the cobra+viper style
// of Nirmitee-tech-headless-ehr-fhir/api/cmd/ehr-server.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "registryd",
		Short: "FHIR resource registry daemon",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loadSchemaCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newViper() *viper.Viper {
	return viper.New()
}
