package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var apiClient = &http.Client{Timeout: 10 * time.Second}

// CreateRoom asks the server for a fresh room and returns its code.
func CreateRoom(ctx context.Context, serverURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/rooms", nil)
	if err != nil {
		return "", err
	}

	resp, err := apiClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create room: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		RoomCode string `json:"roomCode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	return body.RoomCode, nil
}
