package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satishbabariya/cohortsql/internal/core/catalog"
	"github.com/satishbabariya/cohortsql/internal/core/dialect"
	"github.com/satishbabariya/cohortsql/internal/core/orchestrator"
)

// DefaultModel is the model used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// GenAIRepairer repairs SQL with a Gemini model.
type GenAIRepairer struct {
	client  *genai.Client
	model   string
	cat     *catalog.Catalog
	dialect dialect.Dialect
	logger  *zap.Logger
}

// NewGenAIRepairer creates a repairer from cfg. The API key is required.
func NewGenAIRepairer(ctx context.Context, cfg Config, cat *catalog.Catalog, d dialect.Dialect) (*GenAIRepairer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: genai API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	return &GenAIRepairer{client: client, model: model, cat: cat, dialect: d, logger: zap.NewNop()}, nil
}

// WithLogger sets the logger and returns g.
func (g *GenAIRepairer) WithLogger(l *zap.Logger) *GenAIRepairer {
	g.logger = l
	return g
}

// Repair implements orchestrator.Repairer.
func (g *GenAIRepairer) Repair(ctx context.Context, req orchestrator.RepairRequest) (string, error) {
	prompt := BuildPrompt(req, g.cat, g.dialect)
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
		})
	if err != nil {
		return "", fmt.Errorf("llm: genai generate: %w", err)
	}
	sql, err := ExtractSQL(resp.Text())
	if err != nil {
		return "", err
	}
	g.logger.Debug("genai repair", zap.String("model", g.model), zap.Bool("broaden", req.Broaden))
	return sql, nil
}
