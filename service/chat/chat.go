package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/metrics"
)

const (
	ActionQueryData = "query_data"
	ActionExplain   = "explain"
	ActionGreeting  = "greeting"
	ActionError     = "error"

	msgMissingKey    = "API Key missing."
	msgAnalyzeFailed = "I encountered an error analyzing your request."
	msgNoData        = "No data found."
)

// ErrEmptyMessage is returned by Ask for a blank message.
var ErrEmptyMessage = errors.New("message is required")

// Querier runs generated SQL against one wallet's records.
type Querier interface {
	QueryReadOnly(ctx context.Context, wallet, query string, opts db.QueryOptions) (*db.QueryResult, error)
}

// Intent is the model's reading of a user message.
type Intent struct {
	Action            string `json:"action"`
	SQLQuery          string `json:"sql_query"`
	VisualizationType string `json:"visualization_type"`
	TextResponse      string `json:"text_response"`
}

// Response is the reply to a chat message.
type Response struct {
	Text          string         `json:"text"`
	Visualization *Visualization `json:"visualization"`
}

// Visualization is a rendering hint for query results.
type Visualization struct {
	Type  string `json:"type"`
	Data  []Item `json:"data"`
	Title string `json:"title"`
}

// Item is one display row of a query result.
type Item struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Time        string `json:"time"`
	Status      string `json:"status"`
	Icon        string `json:"icon"`
}

var personas = []string{
	"You are a cynical blockchain detective.",
	"You are an enthusiastic crypto analyst.",
	"You are a precise and logical data scientist.",
	"You are a helpful and friendly assistant.",
}

const schemaContext = `
Table: transactions
- signature (TEXT, Primary Key): Transaction hash.
- block_time (BIGINT): Unix timestamp, may be NULL.
- status (TEXT): 'Success' or 'Failed'.
- fee (BIGINT): Fee in lamports.

Table: token_movements
- signature (TEXT, Foreign Key): Links to transactions.
- mint (TEXT): Token mint address. Native SOL uses So11111111111111111111111111111111111111112.
- amount (BIGINT): Signed raw amount; positive is incoming. Divide by 10^decimals for display units.
- decimals (INTEGER): Decimals, may be NULL.
- source (TEXT): Sender.
- destination (TEXT): Receiver.
- block_time (BIGINT): Unix timestamp, may be NULL.
`

const intentPrompt = `
You are an expert Solana data analyst.
` + schemaContext + `
GOAL:
1. Analyze the user's request.
2. If they need data from their wallet, generate a single PostgreSQL SELECT query.
   - IMPORTANT: The database contains ONLY the user's data. Do NOT filter by source or destination address unless specifically asked.
   - Assume all rows in transactions and token_movements belong to the user.
   - Do not use schema-qualified names or query parameters.
3. If they want to chat about anything else, just chat! Set action to 'greeting' or 'explain' and provide a helpful response.
   - DO NOT say you can only talk about Solana. Be a helpful, witty assistant.

OUTPUT JSON:
{
  "action": "query_data" | "explain" | "greeting",
  "sql_query": "SELECT ...",
  "visualization_type": "arc" | "sankey" | "heatmap" | "list" | "text",
  "text_response": "..."
}
`

// Service answers natural-language questions about a wallet.
type Service struct {
	gen     Generator
	querier Querier
	opts    db.QueryOptions
	metrics *metrics.Metrics
	logger  *slog.Logger

	now  func() time.Time
	pick func(n int) int
}

// NewService creates a chat service. A nil gen answers every message with
// the missing-key reply; m may be nil.
func NewService(gen Generator, querier Querier, opts db.QueryOptions, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		gen:     gen,
		querier: querier,
		opts:    opts,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		pick:    rand.IntN,
	}
}

// Ask answers message for wallet. Model and query failures are folded into
// the reply text; the only error is a blank message.
func (s *Service) Ask(ctx context.Context, wallet, message string) (*Response, error) {
	if strings.TrimSpace(message) == "" {
		return nil, ErrEmptyMessage
	}

	intent := s.analyze(ctx, message)
	resp := &Response{Text: intent.TextResponse}
	status := "success"
	if intent.Action == ActionError {
		status = "error"
	}
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordChatRequest(intent.Action, status)
		}
	}()

	if intent.Action != ActionQueryData || strings.TrimSpace(intent.SQLQuery) == "" {
		return resp, nil
	}

	summary := msgNoData
	result, err := s.querier.QueryReadOnly(ctx, wallet, intent.SQLQuery, s.opts)
	if err != nil {
		status = "query_error"
		s.logger.WarnContext(ctx, "chat query failed",
			"wallet", wallet,
			"sql", intent.SQLQuery,
			"error", err,
		)
	} else if len(result.Rows) > 0 {
		summary, resp.Visualization = s.shape(result, intent.VisualizationType)
	}

	resp.Text = s.answer(ctx, message, summary)
	return resp, nil
}

// analyze asks the model for an intent. Every failure becomes an error intent.
func (s *Service) analyze(ctx context.Context, message string) Intent {
	if s.gen == nil {
		return Intent{Action: ActionError, VisualizationType: "text", TextResponse: msgMissingKey}
	}

	start := time.Now()
	raw, err := s.gen.Generate(ctx, intentPrompt, message, true)
	s.recordLLM("intent", start)
	if err != nil {
		s.logger.ErrorContext(ctx, "intent analysis failed", "error", err)
		return Intent{Action: ActionError, VisualizationType: "text", TextResponse: msgAnalyzeFailed}
	}

	var intent Intent
	if err := json.Unmarshal([]byte(stripFence(raw)), &intent); err != nil || intent.Action == "" {
		s.logger.ErrorContext(ctx, "intent analysis returned invalid json", "error", err, "raw", raw)
		return Intent{Action: ActionError, VisualizationType: "text", TextResponse: msgAnalyzeFailed}
	}
	if intent.VisualizationType == "" {
		intent.VisualizationType = "text"
	}
	return intent
}

// answer asks the model to phrase summary as a reply in a random persona.
func (s *Service) answer(ctx context.Context, message, summary string) string {
	if s.gen == nil {
		return "Here is the data I found. (Error generating summary: " + msgMissingKey + ")"
	}

	persona := personas[s.pick(len(personas))]
	prompt := fmt.Sprintf(`
%s

User Question: %q
Data Found: %s

Task: Answer the user's question using the data found.
- Be concise and witty.
- Cite specific numbers/tokens from the data.
- If data is empty, explain why or make a lighthearted comment.
`, persona, message, summary)

	start := time.Now()
	text, err := s.gen.Generate(ctx, "", prompt, false)
	s.recordLLM("answer", start)
	if err != nil {
		s.logger.ErrorContext(ctx, "answer generation failed", "error", err)
		return fmt.Sprintf("Here is the data I found. (Error generating summary: %v)", err)
	}
	return text
}

func (s *Service) recordLLM(step string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordLLMCall(step, time.Since(start).Seconds())
	}
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
