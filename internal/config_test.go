package internal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientConfig_WebsocketURL(t *testing.T) {
	t.Run("should derive the socket from the store url", func(t *testing.T) {
		req := require.New(t)

		plain, err := ClientConfig{StoreURL: "http://localhost:8080"}.WebsocketURL()
		req.NoError(err)
		secure, err := ClientConfig{StoreURL: "https://duo.example.org/"}.WebsocketURL()
		req.NoError(err)

		req.Equal("ws://localhost:8080/realtime/v1/websocket", plain)
		req.Equal("wss://duo.example.org/realtime/v1/websocket", secure)
	})

	t.Run("should prefer the explicit realtime url", func(t *testing.T) {
		req := require.New(t)

		got, err := ClientConfig{StoreURL: "http://a", RealtimeURL: "ws://b/socket"}.WebsocketURL()

		req.NoError(err)
		req.Equal("ws://b/socket", got)
	})
}
