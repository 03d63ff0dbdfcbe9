// Package main runs a demo client: it posts a signed webhook to a local
// server and watches the processed-event stream confirm it went through.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	secret := os.Getenv("WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("WEBHOOK_SECRET is required")
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect to the event stream first so nothing is missed.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var ev map[string]any
			if err := c.ReadJSON(&ev); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %v", ev)
		}
	}()

	// Post a signed test webhook.
	eventID := fmt.Sprintf("demo-%d", time.Now().UnixNano())
	body, _ := json.Marshal(map[string]any{
		"eventId": eventID,
		"event":   "stock.updated",
		"data":    map[string]any{"produto": map[string]any{"id": 0}},
	})
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := fmt.Sprintf("sha256=%x", mac.Sum(nil))

	req, _ := http.NewRequest(http.MethodPost, base+"/webhook/bling", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Bling-Signature-256", sig)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var ack map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		log.Fatal(err)
	}
	log.Printf("webhook %s -> %d %v", eventID, resp.StatusCode, ack)

	// Wait briefly for the stream to echo the processed event.
	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}
