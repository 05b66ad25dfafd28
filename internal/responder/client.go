package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"detective_game/internal/domain"
)

// corpus lines sent with each request
const maxCorpus = 50

var ErrEmptyReply = errors.New("responder: empty reply")

// Client calls the external response generator that writes a bot's side of
// a conversation in the style of its author.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new response generator client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Turn is one chat line as the generator sees it.
type Turn struct {
	Role string `json:"role"` // "bot" | "human"
	Text string `json:"text"`
}

type Persona struct {
	FID         int64               `json:"fid"`
	Username    string              `json:"username"`
	DisplayName string              `json:"display_name,omitempty"`
	Bio         string              `json:"bio,omitempty"`
	Corpus      []string            `json:"corpus"`
	Style       string              `json:"style,omitempty"`
	Personality *domain.Personality `json:"personality,omitempty"`
}

type replyRequest struct {
	Persona Persona `json:"persona"`
	History []Turn  `json:"history"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

// GenerateOpponentReply asks the generator for the bot's next message.
func (c *Client) GenerateOpponentReply(ctx context.Context, bot *domain.Bot, history []domain.ChatMessage) (string, error) {
	body, err := json.Marshal(buildRequest(bot, history))
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/v1/reply", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("API error: %s - %s", resp.Status, string(msg))
	}

	var out replyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode reply: %w", err)
	}
	if out.Reply == "" {
		return "", ErrEmptyReply
	}
	return out.Reply, nil
}

func buildRequest(bot *domain.Bot, history []domain.ChatMessage) replyRequest {
	corpus := bot.Corpus
	if len(corpus) > maxCorpus {
		corpus = corpus[len(corpus)-maxCorpus:]
	}
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		role := "human"
		if m.SenderFID == bot.FID {
			role = "bot"
		}
		turns = append(turns, Turn{Role: role, Text: m.Text})
	}
	return replyRequest{
		Persona: Persona{
			FID:         bot.FID,
			Username:    bot.OriginalAuthor.Username,
			DisplayName: bot.OriginalAuthor.DisplayName,
			Bio:         bot.OriginalAuthor.Bio,
			Corpus:      corpus,
			Style:       bot.StyleDescriptor,
			Personality: bot.Personality,
		},
		History: turns,
	}
}
