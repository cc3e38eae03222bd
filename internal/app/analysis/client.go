package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/internal/game"
	"github.com/chess-vn/slbaduk/pkg/logging"
	"go.uber.org/zap"
)

var (
	ErrNoScore          = errors.New("analysis response has no score")
	ErrUnexpectedStatus = errors.New("unexpected analysis status")
)

// Client scores finished positions with a remote board-analysis service.
type Client struct {
	http *http.Client
	cfg  Config
}

func NewClient(cfg Config) *Client {
	if cfg.Rules == "" {
		cfg.Rules = "japanese"
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
	}
}

func (client *Client) Analyze(ctx context.Context, s *entities.MatchSession) (game.ScoreEstimate, error) {
	u := client.cfg.BaseUrl.JoinPath("analyze")

	body := new(bytes.Buffer)
	req := dtos.AnalyseRequestFromEntity(s, client.cfg.Rules, client.cfg.Komi)
	if err := json.NewEncoder(body).Encode(req); err != nil {
		return game.ScoreEstimate{}, fmt.Errorf("failed to encode body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return game.ScoreEstimate{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := client.http.Do(httpReq)
	if err != nil {
		return game.ScoreEstimate{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return game.ScoreEstimate{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var analysis dtos.AnalyseResponse
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return game.ScoreEstimate{}, fmt.Errorf("failed to decode body: %w", err)
	}
	lead, ok := analysis.Scores[dtos.ScoreKeyBlackLead]
	if !ok {
		return game.ScoreEstimate{}, ErrNoScore
	}
	logging.Info("position analysed",
		zap.String("match_id", s.Id),
		zap.Float64("black_lead", lead),
	)
	return game.ScoreEstimate{BlackLead: lead}, nil
}
