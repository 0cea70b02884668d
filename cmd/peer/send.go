package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/peerbeam/peerbeam/internal/peer"
	"github.com/peerbeam/peerbeam/internal/transfer"
)

var flagSendCode string

var sendCmd = &cobra.Command{
	Use:   "send <file>",
	Short: "Send a file to a peer",
	Long: `Send a file to whoever joins the room. Without --code a fresh room is
created and its code printed for the receiver.

Examples:
  peerbeam send photo.jpg
  peerbeam send --code ABC234 photo.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(cmd.Context(), args[0])
	},
}

func init() {
	sendCmd.Flags().StringVar(&flagSendCode, "code", "", "join an existing room instead of creating one")
}

func runSend(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	code := flagSendCode
	if code == "" {
		code, err = peer.CreateRoom(ctx, flagServer)
		if err != nil {
			return err
		}
		fmt.Printf("Room code: %s\n", code)
	}

	sig := peer.NewSignalingClient()
	if err := sig.Connect(flagServer); err != nil {
		return err
	}

	orch := peer.NewOrchestrator(sig)
	defer orch.Close()

	done := make(chan error, 1)

	orch.OnStateChange = func(s peer.State) {
		switch s {
		case peer.StateWaiting:
			fmt.Println("Waiting for a peer to join...")
		case peer.StateFailed:
			done <- fmt.Errorf("connection failed")
		case peer.StateDisconnected:
			done <- fmt.Errorf("peer disconnected")
		}
	}

	orch.OnPeerConnected = func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			go func() { done <- sendFile(ctx, dc, path, info.Size()) }()
		})
	}

	orch.JoinRoom(code)

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		orch.Leave()
		return ctx.Err()
	}
}

func sendFile(ctx context.Context, dc *webrtc.DataChannel, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	sender := transfer.NewSender(dc)
	sender.OnProgress = printProgress

	tr, err := sender.Send(ctx, filepath.Base(path), mimeType, size, f)
	if err != nil {
		return err
	}

	fmt.Printf("\nSent %s (%d chunks)\n", tr.Name, tr.Chunks)
	return nil
}

func printProgress(p transfer.Progress) {
	fmt.Printf("\r%6.2f%%  %s/s", p.Percent, humanBytes(int64(p.BytesPerSecond)))
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
