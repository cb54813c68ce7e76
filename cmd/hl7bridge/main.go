package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hl7bridge",
		Short:         "HL7 v2 / FHIR R4 conversion service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(serveCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(convertCmd())
	root.AddCommand(enqueueCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(tenantCmd())
	return root
}
