package openai

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
	"marketstream/internal/logger"
	"marketstream/internal/store"
	"marketstream/internal/trace"
	"marketstream/internal/types"
)

// Streamer produces market commentary as a token stream from the OpenAI
// chat completions API.
type Streamer struct {
	cfg      *store.Config
	endpoint string
}

var _ interfaces.Streamer = (*Streamer)(nil)

func NewStreamer(cfg *store.Config) *Streamer {
	endpoint := "https://api.openai.com/v1/chat/completions"
	if ep := os.Getenv("OPENAI_API_ENDPOINT"); ep != "" {
		endpoint = ep
	}
	return &Streamer{cfg: cfg, endpoint: endpoint}
}

// Stream sends the request and returns a channel of text chunks. The
// channel is closed when the model finishes or the context is canceled.
func (s *Streamer) Stream(ctx context.Context, req types.CommentaryRequest) (<-chan string, error) {
	ctx, span := trace.StartSpan(ctx, "openai-stream")

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		span.End()
		return nil, errors.New("OPENAI_API_KEY missing")
	}

	system := s.cfg.LLM.System
	if system == "" {
		system = "You are a concise market commentator for a stock dashboard."
	}

	state := map[string]any{"symbol": req.Symbol, "context": req.Context}
	stateB, _ := json.Marshal(state)
	user := fmt.Sprintf("%s\nState:%s", req.Prompt, string(stateB))

	body := map[string]any{
		"model":       s.cfg.LLM.Model,
		"messages":    []map[string]string{{"role": "system", "content": system}, {"role": "user", "content": user}},
		"temperature": s.cfg.LLM.Temperature,
		"max_tokens":  s.cfg.LLM.MaxTokens,
		"stream":      true,
	}
	bb, _ := json.Marshal(body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(bb))
	if err != nil {
		span.End()
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		span.End()
		return nil, err
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		span.End()
		return nil, fmt.Errorf("openai http %d", resp.StatusCode)
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
			if data == "[DONE]" {
				return
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				logger.Debug(ctx, "Skipping unparseable stream event", "error", err)
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case out <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}
