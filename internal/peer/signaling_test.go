package peer

import (
	"sync"
	"testing"
	"time"

	"github.com/peerbeam/peerbeam/internal/ws"
)

func TestSignalingClientConcurrentClose(t *testing.T) {
	c := NewSignalingClient()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	select {
	case <-c.done:
	default:
		t.Fatal("done must be closed after Close")
	}
}

func TestSignalingClientSendAfterClose(t *testing.T) {
	c := NewSignalingClient()

	// Fill the outgoing buffer so a blocked Send could only return via done.
	for i := 0; i < cap(c.outgoing); i++ {
		c.outgoing <- ws.Message{Type: ws.MsgRoomLeave}
	}
	c.Close()

	returned := make(chan struct{})
	go func() {
		c.Send(ws.MsgRoomLeave, nil)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Send must not block after Close")
	}
}
