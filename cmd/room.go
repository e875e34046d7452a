package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BioHazard786/Warpcall/internal/dns"
)

// parseRoomInput accepts a bare room ID or a room link.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") || strings.Contains(input, "/") {
		return extractRoomIDFromURL(input)
	}
	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("parse room link: %w", err)
	}

	parts := strings.Split(strings.TrimSuffix(parsedURL.Path, "/"), "/")
	for i, part := range parts {
		if part == "r" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

var roomHTTPClient = &http.Client{
	Timeout:   15 * time.Second,
	Transport: &http.Transport{DialContext: dns.DialContext, Proxy: http.ProxyFromEnvironment},
}

// requestRoom asks the relay for a fresh room ID.
func requestRoom(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := roomHTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request room: relay answered %s", resp.Status)
	}

	var body struct {
		RoomID string `json:"room_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode room response: %w", err)
	}
	if body.RoomID == "" {
		return "", fmt.Errorf("relay returned an empty room ID")
	}
	return body.RoomID, nil
}
