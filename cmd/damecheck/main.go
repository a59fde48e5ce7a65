package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/park285/dame-server/pkg/damedto"
	"github.com/valyala/fasthttp"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// damecheck probes a running server: health, session exchange, then a socket
// that prints every event it receives for DAME_WATCH.
func main() {
	baseURL := strings.TrimRight(os.Getenv("DAME_URL"), "/")
	token := os.Getenv("DAME_TOKEN")
	devUser := os.Getenv("DAME_DEV_USER")
	watch := 10 * time.Second
	if v := os.Getenv("DAME_WATCH"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatalf("DAME_WATCH: %v", err)
		}
		watch = d
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}

	status, body, err := client.GetTimeout(nil, baseURL+"/healthz", 5*time.Second)
	if err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	log.Printf("/healthz %d %s", status, strings.TrimSpace(string(body)))

	if token == "" {
		if devUser == "" {
			log.Println("DAME_TOKEN and DAME_DEV_USER not set; skipping socket check")
			return
		}
		token, err = devSession(client, baseURL, devUser)
		if err != nil {
			log.Fatalf("session error: %v", err)
		}
		log.Printf("session ok for %s", devUser)
	}

	wsURL := strings.Replace(baseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)
	ctx, cancel := context.WithTimeout(context.Background(), watch)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		log.Fatalf("ws dial error: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var env damedto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if ctx.Err() != nil {
				log.Println("watch window elapsed")
				return
			}
			log.Fatalf("ws read error: %v", err)
		}
		fmt.Printf("WS event=%s data=%s\n", env.Event, string(env.Data))
	}
}

// devSession trades unsigned initData for a token. The server must run with
// DEV_AUTH enabled.
func devSession(client *fasthttp.Client, baseURL, user string) (string, error) {
	userJSON, _ := json.Marshal(map[string]any{"id": time.Now().Unix(), "username": user})
	initData := url.Values{}
	initData.Set("user", string(userJSON))
	initData.Set("auth_date", fmt.Sprint(time.Now().Unix()))
	reqBody, _ := json.Marshal(damedto.SessionRequest{InitData: initData.Encode()})

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.SetRequestURI(baseURL + "/api/auth/session")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBodyRaw(reqBody)
	if err := client.DoTimeout(req, resp, 5*time.Second); err != nil {
		return "", err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	var out damedto.SessionResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", err
	}
	return out.Token, nil
}
