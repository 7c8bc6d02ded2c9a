// Command ws_chat is an interactive terminal client for a chat: it logs
// in (registering on first use), opens the chat-scoped websocket and
// bridges stdin lines to messages.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"messenger/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "server base address")
	email := flag.String("email", "cli@example.com", "account email")
	password := flag.String("password", "secret1", "account password")
	name := flag.String("name", "cli-user", "display name used on first registration")
	chat := flag.String("chat", "", "chat id to join (required)")
	flag.Parse()

	if *chat == "" {
		return errors.New("-chat is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	token, err := login(ctx, *addr, *name, *email, *password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	wsAddr := strings.Replace(*addr, "http", "ws", 1) + "/ws/" + *chat + "?token=" + token
	conn, _, err := websocket.Dial(ctx, wsAddr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	var status proto.Status
	if err := wsjson.Read(ctx, conn, &status); err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	fmt.Printf("Connected to chat %s as %s\n", status.ChatID, status.UserID)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

// login obtains a token, registering the account if it does not exist.
func login(ctx context.Context, addr, name, email, password string) (string, error) {
	token, err := authRequest(ctx, addr+"/api/auth/token", map[string]string{
		"email":    email,
		"password": password,
	})
	if err == nil {
		return token, nil
	}

	return authRequest(ctx, addr+"/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

func authRequest(ctx context.Context, url string, payload map[string]string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return "", err
	}
	return auth.Token, nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Type {
		case proto.FrameTypeMessage:
			var evt proto.MessageData
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			fmt.Printf("%s: %s\n", evt.SenderName, evt.Text)
		case proto.FrameTypeRead:
			var evt proto.ReadData
			if err := json.Unmarshal(outbound.Data, &evt); err != nil {
				log.Printf("unmarshal read: %v", err)
				continue
			}
			fmt.Printf("(message %s read by everyone)\n", evt.MessageID)
		default:
			fmt.Printf("type=%s data=%s\n", outbound.Type, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Text: text}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
