package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"detective_game/internal/service"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

// ws_smoke connects as a player and prints every event it receives.
func main() {
	_ = godotenv.Load()

	fid := flag.Int64("fid", 3001, "player fid to connect as")
	wait := flag.Duration("wait", 30*time.Second, "how long to listen")
	flag.Parse()

	if os.Getenv("JWT_SECRET") == "" {
		log.Fatal("JWT_SECRET not set")
	}
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	service.InitJWT()
	token, err := service.GenerateJWT(*fid, time.Hour)
	if err != nil {
		log.Fatalf("gen token: %v", err)
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	wsURL := fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		log.Fatalf("write ping: %v", err)
	}

	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Printf("read: %v", err)
			break
		}
		var env struct {
			Type    string          `json:"type"`
			Channel string          `json:"channel"`
			Event   string          `json:"event"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg, &env); err != nil {
			log.Printf("bad frame: %s", msg)
			continue
		}
		log.Printf("type=%s channel=%s event=%s data=%s", env.Type, env.Channel, env.Event, env.Data)
	}

	log.Println("smoke test finished")
}
