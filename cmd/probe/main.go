package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"

	"courier/infrastructure/ws"
)

// Smoke client for a running server: identifies, optionally sends one
// message, and prints everything pushed back for a short window.
type Config struct {
	ServerAddr  string        `envconfig:"PROBE_SERVER_ADDR" default:"localhost:5002"`
	UserID      string        `envconfig:"PROBE_USER_ID" default:"probe"`
	Token       string        `envconfig:"PROBE_TOKEN"`
	RecipientID string        `envconfig:"PROBE_RECIPIENT_ID"`
	Content     string        `envconfig:"PROBE_CONTENT" default:"ping from probe"`
	Window      time.Duration `envconfig:"PROBE_WINDOW" default:"5s"`
	Colours     bool          `envconfig:"PROBE_COLOURS" default:"true"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	url := fmt.Sprintf("ws://%s/ws", cfg.ServerAddr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", url, err)
	}
	defer conn.Close()

	send(conn, ws.EventIdentify, ws.IdentifyPayload{UserID: cfg.UserID, Token: cfg.Token})
	fmt.Printf("Identified as %s on %s\n", cfg.UserID, url)

	if cfg.RecipientID != "" {
		send(conn, ws.EventSendMessage, ws.SendMessagePayload{
			SenderID:    cfg.UserID,
			RecipientID: cfg.RecipientID,
			Content:     cfg.Content,
		})
		fmt.Printf("Sent %q to %s\n", cfg.Content, cfg.RecipientID)
	}

	deadline := time.Now().Add(cfg.Window)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			log.Fatalf("Failed to set read deadline: %v", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			// The deadline doubles as the exit condition.
			return
		}

		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			fmt.Printf("<- unreadable frame: %v\n", err)
			continue
		}
		printEvent(cfg.Colours, env)
	}
}

func send(conn *websocket.Conn, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("Failed to marshal %s payload: %v", eventType, err)
	}
	frame, err := json.Marshal(ws.Envelope{Type: eventType, Payload: raw})
	if err != nil {
		log.Fatalf("Failed to marshal %s frame: %v", eventType, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Fatalf("Failed to send %s: %v", eventType, err)
	}
}

func printEvent(colours bool, env ws.Envelope) {
	label := env.Type
	if colours {
		switch env.Type {
		case "error":
			label = color.New(color.FgRed).Render(label)
		case "deliveryReceipt", "messageReceived":
			label = color.New(color.FgGreen).Render(label)
		default:
			label = color.New(color.FgCyan).Render(label)
		}
	}
	fmt.Printf("<- %s %s\n", label, string(env.Payload))
}
