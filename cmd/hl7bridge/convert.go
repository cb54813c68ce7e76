package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hl7bridge/internal/config"
	"github.com/ehr/hl7bridge/internal/mapping/convert"
	"github.com/ehr/hl7bridge/internal/mapping/engine"
)

// convertCmd runs one conversion locally, without the database, cache or
// webhooks. The output goes to stdout; issues go to stderr.
func convertCmd() *cobra.Command {
	var (
		file    string
		tenant  string
		strict  bool
		outcome bool
	)

	cmd := &cobra.Command{
		Use:       "convert <hl7-to-fhir|fhir-to-hl7>",
		Short:     "Convert a single message from a file or stdin",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(convert.HL7ToFHIR), string(convert.FHIRToHL7)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			payload, err := readPayload(cmd, file)
			if err != nil {
				return err
			}

			eng := engine.New(engine.Options{
				Logger:          zerolog.Nop(),
				SendingApp:      cfg.SendingApp,
				SendingFacility: cfg.SendingFacility,
				Strict:          cfg.StrictValidation,
			})
			r := eng.Convert(tenant, convert.Direction(args[0]), string(payload), engine.CallOptions{Strict: strict})

			if outcome || r.IsFailure() {
				enc := json.NewEncoder(cmd.ErrOrStderr())
				enc.SetIndent("", "  ")
				if err := enc.Encode(r.OperationOutcome()); err != nil {
					return err
				}
			}
			if r.IsFailure() {
				return fmt.Errorf("conversion %s failed with %d error(s)", r.TransactionID, len(r.Errors))
			}
			_, err = cmd.OutOrStdout().Write(r.Output)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "input file, - for stdin")
	cmd.Flags().StringVar(&tenant, "tenant", "default", "tenant id used for generated identifiers")
	cmd.Flags().BoolVar(&strict, "strict", false, "withhold output when any error is reported")
	cmd.Flags().BoolVar(&outcome, "outcome", false, "print the OperationOutcome to stderr")
	return cmd
}

func readPayload(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return data, nil
}
