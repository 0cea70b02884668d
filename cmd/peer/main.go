package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagServer  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "peerbeam",
	Short: "Peer-to-peer file transfer over WebRTC data channels",
	Long: `Peerbeam transfers files directly between two devices. The server only
relays signaling; file bytes travel peer to peer over an encrypted data
channel.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if flagVerbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "http://localhost:8080", "signaling server URL")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(receiveCmd)

	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
