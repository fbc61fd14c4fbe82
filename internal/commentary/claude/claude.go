package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"marketstream/internal/interfaces"
	"marketstream/internal/store"
	"marketstream/internal/trace"
	"marketstream/internal/types"
)

// Streamer produces market commentary as a token stream from the Anthropic
// messages API.
type Streamer struct {
	cfg      *store.Config
	endpoint string
}

var _ interfaces.Streamer = (*Streamer)(nil)

func NewStreamer(cfg *store.Config) *Streamer {
	// default messages endpoint (public Anthropic)
	endpoint := "https://api.anthropic.com/v1/messages"
	// If you use a proxy/bedrock/vertex, set endpoint via CLAUDE_API_ENDPOINT env var
	if ep := os.Getenv("CLAUDE_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Streamer{cfg: cfg, endpoint: endpoint}
}

func (s *Streamer) Stream(ctx context.Context, req types.CommentaryRequest) (<-chan string, error) {
	ctx, span := trace.StartSpan(ctx, "claude-stream")

	apiKey := os.Getenv("CLAUDE_API_KEY")
	if apiKey == "" {
		span.End()
		return nil, errors.New("CLAUDE_API_KEY missing")
	}

	system := s.cfg.LLM.System
	if system == "" {
		system = "You are a concise market commentator for a stock dashboard."
	}

	state := map[string]any{"symbol": req.Symbol, "context": req.Context}
	stateB, _ := json.Marshal(state)
	user := fmt.Sprintf("%s\nState:%s", req.Prompt, string(stateB))

	body := map[string]any{
		"model":      s.cfg.LLM.Model,
		"system":     system,
		"messages":   []map[string]string{{"role": "user", "content": user}},
		"max_tokens": s.cfg.LLM.MaxTokens,
		"stream":     true,
	}
	bb, _ := json.Marshal(body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bb))
	if err != nil {
		span.End()
		return nil, err
	}
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		span.End()
		return nil, err
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		span.End()
		return nil, fmt.Errorf("claude http %d", resp.StatusCode)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		defer span.End()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

			var event struct {
				Type  string `json:"type"`
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text == "" {
					continue
				}
				select {
				case out <- event.Delta.Text:
				case <-ctx.Done():
					return
				}
			case "message_stop":
				return
			}
		}
	}()

	return out, nil
}
