package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/peerbeam/peerbeam/internal/peer"
	"github.com/peerbeam/peerbeam/internal/transfer"
)

var flagReceiveDir string

var receiveCmd = &cobra.Command{
	Use:   "receive <code>",
	Short: "Receive a file from a peer",
	Long: `Join a room by its code and receive whatever the sender transfers.

Examples:
  peerbeam receive ABC234
  peerbeam receive ABC234 --output ~/Downloads`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReceive(cmd.Context(), args[0])
	},
}

func init() {
	receiveCmd.Flags().StringVarP(&flagReceiveDir, "output", "o", ".", "directory to save received files")
}

func runReceive(ctx context.Context, code string) error {
	sig := peer.NewSignalingClient()
	if err := sig.Connect(flagServer); err != nil {
		return err
	}

	orch := peer.NewOrchestrator(sig)
	defer orch.Close()

	done := make(chan error, 1)

	orch.OnStateChange = func(s peer.State) {
		if s == peer.StateFailed {
			done <- fmt.Errorf("connection failed")
		}
	}

	orch.OnPeerConnected = func(dc *webrtc.DataChannel) {
		receiver := transfer.NewReceiver(dc)
		receiver.OnProgress = printProgress
		receiver.OnFile = func(tr *transfer.Transfer, data []byte) {
			done <- saveFile(tr, data)
		}
		receiver.OnError = func(fileID string, err error) {
			done <- err
		}
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if msg.IsString {
				receiver.HandleText(msg.Data)
			} else {
				receiver.HandleBinary(msg.Data)
			}
		})
	}

	orch.OnPeerDisconnected = func() {
		done <- fmt.Errorf("peer disconnected")
	}

	fmt.Println("Connecting...")
	orch.JoinRoom(code)

	select {
	case err := <-done:
		if err == nil {
			orch.Leave()
		}
		return err
	case <-ctx.Done():
		orch.Leave()
		return ctx.Err()
	}
}

func saveFile(tr *transfer.Transfer, data []byte) error {
	// Never trust the sender's name with path separators.
	name := filepath.Base(tr.Name)
	dest := filepath.Join(flagReceiveDir, name)

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("\nSaved %s (%d bytes)\n", dest, len(data))
	return nil
}
