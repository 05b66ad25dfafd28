package responder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"detective_game/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBot() *domain.Bot {
	return &domain.Bot{
		FID:             7,
		OriginalAuthor:  domain.Profile{FID: 7, Username: "dwr"},
		Corpus:          []string{"gm", "shipping today"},
		StyleDescriptor: "lowercase, terse",
	}
}

func TestGenerateOpponentReply(t *testing.T) {
	var got replyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/reply", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(replyResponse{Reply: "gm gm"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", time.Second)
	history := []domain.ChatMessage{
		{SenderFID: 1, Text: "hi"},
		{SenderFID: 7, Text: "yo"},
	}
	reply, err := c.GenerateOpponentReply(context.Background(), testBot(), history)
	require.NoError(t, err)
	assert.Equal(t, "gm gm", reply)

	assert.Equal(t, "dwr", got.Persona.Username)
	assert.Equal(t, "lowercase, terse", got.Persona.Style)
	require.Len(t, got.History, 2)
	assert.Equal(t, "human", got.History[0].Role)
	assert.Equal(t, "bot", got.History[1].Role)
}

func TestGenerateOpponentReply_Errors(t *testing.T) {
	status := http.StatusBadGateway
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "upstream down", status)
			return
		}
		_, _ = w.Write([]byte(`{"reply":""}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.GenerateOpponentReply(context.Background(), testBot(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	status = http.StatusOK
	_, err = c.GenerateOpponentReply(context.Background(), testBot(), nil)
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestBuildRequest_TrimsCorpus(t *testing.T) {
	bot := testBot()
	bot.Corpus = make([]string, maxCorpus+10)
	bot.Corpus[len(bot.Corpus)-1] = "latest"

	req := buildRequest(bot, nil)
	require.Len(t, req.Persona.Corpus, maxCorpus)
	assert.Equal(t, "latest", req.Persona.Corpus[maxCorpus-1])
	assert.Empty(t, req.History)
}
