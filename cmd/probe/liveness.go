package probe

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github/chapool/go-hardware-signer/internal/config"
)

func newLiveness() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liveness",
		Short: "Probes the server for liveness",
		Run: func(cmd *cobra.Command, args []string) {
			verbose, err := cmd.Flags().GetBool(verboseFlag)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to parse verbose flag")
			}

			runProbe(config.DefaultServiceConfigFromEnv(), "/-/healthy", verbose)
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "Prints the probe response body")

	return cmd
}
