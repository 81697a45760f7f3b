// fake-mailer is a stand-in for the Postmark API used in local runs. It
// accepts POST /email, logs each message, and can be told to fail the first
// N requests or to delay every response.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	mu            sync.Mutex
	reqCount      = 0
	failFirstN    = 0
	responseDelay time.Duration
)

type emailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

type emailResponse struct {
	To          string `json:"To"`
	SubmittedAt string `json:"SubmittedAt"`
	MessageID   string `json:"MessageID"`
	ErrorCode   int64  `json:"ErrorCode"`
	Message     string `json:"Message"`
}

func main() {
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}
	if v := os.Getenv("RESPONSE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			responseDelay = time.Duration(n) * time.Millisecond
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/email", handleEmail)

	addr := ":" + getenv("PORT", "8090")
	log.Printf("fake-mailer listening on %s (fail_first_n=%d delay=%s)", addr, failFirstN, responseDelay)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func handleEmail(w http.ResponseWriter, r *http.Request) {
	mu.Lock()
	reqCount++
	n := reqCount
	mu.Unlock()

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	if responseDelay > 0 {
		time.Sleep(responseDelay)
	}

	w.Header().Set("Content-Type", "application/json")

	// Simulate flakiness: first N requests get a Postmark-style rejection.
	if n <= failFirstN {
		log.Printf("FAILING (%d/%d) to=%s subject=%q", n, failFirstN, req.To, req.Subject)
		_ = json.NewEncoder(w).Encode(emailResponse{
			To:        req.To,
			ErrorCode: 406,
			Message:   "simulated failure",
		})
		return
	}

	log.Printf("fake-mailer OK to=%s subject=%q html=%dB text=%dB", req.To, req.Subject, len(req.HTMLBody), len(req.TextBody))
	_ = json.NewEncoder(w).Encode(emailResponse{
		To:          req.To,
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
		MessageID:   fmt.Sprintf("fake-%d", n),
		ErrorCode:   0,
		Message:     "OK",
	})
}
