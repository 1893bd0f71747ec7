// Package config provides configuration helpers for voicelink commands.
package config

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Default backend configuration.
const (
	DefaultServerURL  = "ws://localhost:8000/ws"
	DefaultDeviceName = "voicelink-client"
)

// Device holds the identity the session presents during the hello handshake.
type Device struct {
	ID       string
	Name     string
	MAC      string
	ClientID string
	Token    string
}

// ServerURL returns the backend WebSocket URL from VOICELINK_URL.
// Falls back to the provided default if not set.
func ServerURL(defaultURL string) string {
	if u := os.Getenv("VOICELINK_URL"); u != "" {
		return u
	}
	if defaultURL != "" {
		return defaultURL
	}
	return DefaultServerURL
}

// LoadDevice builds the device identity from environment variables.
// VOICELINK_DEVICE_ID and VOICELINK_TOKEN are required; the MAC defaults
// to the device id and the client id is generated when absent.
func LoadDevice() (Device, error) {
	d := Device{
		ID:       os.Getenv("VOICELINK_DEVICE_ID"),
		Name:     os.Getenv("VOICELINK_DEVICE_NAME"),
		MAC:      os.Getenv("VOICELINK_DEVICE_MAC"),
		ClientID: os.Getenv("VOICELINK_CLIENT_ID"),
		Token:    os.Getenv("VOICELINK_TOKEN"),
	}

	if d.ID == "" {
		return Device{}, fmt.Errorf("VOICELINK_DEVICE_ID environment variable is required")
	}
	if d.Token == "" {
		return Device{}, fmt.Errorf("VOICELINK_TOKEN environment variable is required")
	}
	if d.Name == "" {
		d.Name = DefaultDeviceName
	}
	if d.MAC == "" {
		d.MAC = d.ID
	}
	if d.ClientID == "" {
		d.ClientID = uuid.NewString()
	}

	return d, nil
}
