package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/playperu/knowsy/internal/knowsy"
)

// Inference asks an external model endpoint which topic a bot should play.
// Calls are rate limited so a room full of bots cannot flood the endpoint.
type Inference struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

func NewInference(url string, rps float64) *Inference {
	return &Inference{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type topicOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type chooseTopicRequest struct {
	Task   string        `json:"task"`
	Player string        `json:"player"`
	Topics []topicOption `json:"topics"`
}

type chooseTopicResponse struct {
	TopicID string `json:"topicId"`
}

func (in *Inference) ChooseTopic(ctx context.Context, player knowsy.Player, topics []knowsy.Topic) (string, error) {
	if err := in.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for inference slot: %w", err)
	}

	req := chooseTopicRequest{Task: "choose_topic", Player: player.Name}
	for _, t := range topics {
		req.Topics = append(req.Topics, topicOption{ID: t.ID, Name: t.Name})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, in.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := in.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling inference endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference endpoint returned %d", resp.StatusCode)
	}
	var out chooseTopicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding inference response: %w", err)
	}
	return out.TopicID, nil
}
