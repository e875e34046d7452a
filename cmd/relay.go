package cmd

import (
	"fmt"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/relay"
	"github.com/spf13/cobra"
)

var flagRelayPort int

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the signaling relay",
	Long: `Run the relay that pairs callers in rooms and forwards their negotiation
messages. Settings come from the environment (PORT, RELAY_READ_LIMIT,
RELAY_SEND_BUFFER, RELAY_ALLOWED_ORIGINS, SHUTDOWN_TIMEOUT); --port overrides PORT.

Endpoints: /ws (WebSocket), /room (new room ID), /health, /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadRelay()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			if flagRelayPort <= 0 || flagRelayPort > 65535 {
				return fmt.Errorf("port must be between 1 and 65535, got %d", flagRelayPort)
			}
			cfg.Port = flagRelayPort
		}
		return relay.Run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().IntVarP(&flagRelayPort, "port", "p", 8080, "Port to listen on")
}
