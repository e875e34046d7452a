package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BioHazard786/Warpcall/internal/ui"
	"github.com/BioHazard786/Warpcall/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "warpcall",
	Short: "Peer-to-peer audio and video calls over WebRTC",
	Long: `WarpCall connects two people in a room for a direct audio or video call.
A small relay pairs the two sides and passes negotiation messages between them;
media flows peer to peer.`,
	Version: version.Version,
}

// Execute runs the root command. An interrupt cancels the command context so
// an active call is hung up cleanly.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
