package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"homelab/internal/chat"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	pairCount = flag.Int("pairs", 250, "number of user pairs; each pair shares one channel")
	msgCount  = flag.Int("messages", 20, "messages sent per user")
	timeout   = flag.Duration("timeout", 30*time.Second, "how long each socket waits for its acks")
)

type stats struct {
	sent, acked, rejected, received, failed atomic.Int64
}

type AuthResponse struct {
	Token string `json:"access_token"`
	ID    string `json:"id"`
}

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", *pairCount*2, *msgCount)

	var st stats
	var wg sync.WaitGroup
	start := time.Now()

	// User 0 talks to User 1, User 2 talks to User 3...
	for i := range *pairCount {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runPair(i, &st)
		}()
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d acked=%d rejected=%d received=%d failed=%d",
		time.Since(start).Round(time.Millisecond),
		st.sent.Load(), st.acked.Load(), st.rejected.Load(), st.received.Load(), st.failed.Load())
}

func runPair(pairID int, st *stats) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	tokenA := authenticate(userA, pass)
	tokenB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		st.failed.Add(1)
		return
	}

	// A owns the channel, B joins it.
	channelID := createChannel(tokenA, fmt.Sprintf("pair-%d-%d", pairID, time.Now().UnixNano()))
	if channelID == "" || !subscribe(tokenB, channelID) {
		st.failed.Add(1)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, tokenA, channelID, userA, st)
	go spamChat(&wsWg, tokenB, channelID, userB, st)
	wsWg.Wait()
}

// authenticate registers (ignoring "already taken") and logs in.
func authenticate(username, password string) string {
	creds := map[string]string{"username": username, "password": password}
	if resp, err := call(http.MethodPost, "/register", "", creds); err == nil {
		resp.Body.Close()
	}

	resp, err := call(http.MethodPost, "/login", "", creds)
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Login Failed [%s]: %s", username, resp.Status)
		return ""
	}

	var data AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ""
	}
	return data.Token
}

func createChannel(token, slug string) string {
	resp, err := call(http.MethodPost, "/chat/channels", token, chat.CreateChannel{Slug: slug, Type: chat.DirectMessage})
	if err != nil {
		log.Printf("❌ Create Channel Failed: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Printf("❌ Create Channel Failed: %s", resp.Status)
		return ""
	}

	var c chat.Channel
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return ""
	}
	return c.ID
}

func subscribe(token, channelID string) bool {
	resp, err := call(http.MethodPut, "/chat/channels/subscribe", token, map[string]string{"channel_id": channelID})
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func spamChat(wg *sync.WaitGroup, token, channelID, user string, st *stats) {
	defer wg.Done()

	wsURL := strings.Replace(*baseURL, "http", "ws", 1) + "/chat/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		st.failed.Add(1)
		return
	}
	defer conn.Close()

	// Every message of the pair comes back to both members, plus one ack per send.
	done := make(chan struct{})
	go func() {
		defer close(done)
		acks, messages := 0, 0
		_ = conn.SetReadDeadline(time.Now().Add(*timeout))
		for acks < *msgCount || messages < 2*(*msgCount) {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("⚠️ %s stopped reading after %d acks, %d messages: %v", user, acks, messages, err)
				return
			}
			resp, err := chat.DecodeResponse(data)
			if err != nil {
				continue
			}
			switch r := resp.(type) {
			case chat.SendAck:
				acks++
				if r.Ack.StatusCode == http.StatusOK {
					st.acked.Add(1)
				} else {
					st.rejected.Add(1)
				}
			case chat.SendChatMessage:
				messages++
				st.received.Add(1)
			}
		}
	}()

	for i := range *msgCount {
		frame, _ := chat.EncodeRequest(chat.CreateMessage{
			ChannelID: channelID,
			Contents:  fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		st.sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	<-done
	log.Printf("✅ %s finished sending %d msgs", user, *msgCount)
}

func call(method, endpoint, token string, body any) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(method, *baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
