package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finchat/finchat/internal/conversation"
	"github.com/finchat/finchat/internal/nl2sql"
	"github.com/finchat/finchat/internal/warehouse"
)

// Composer turns schema context, windowed history and the new user message
// into a generation request. Composition is deterministic: identical inputs
// produce identical requests.
type Composer struct {
	MaxHistoryTurns int
	MaxResultRows   int
}

func NewComposer(maxHistoryTurns, maxResultRows int) *Composer {
	if maxHistoryTurns <= 0 {
		maxHistoryTurns = 10
	}
	if maxResultRows <= 0 {
		maxResultRows = 1000
	}
	return &Composer{MaxHistoryTurns: maxHistoryTurns, MaxResultRows: maxResultRows}
}

func (c *Composer) Compose(schemaSummary string, history []conversation.Turn, userMessage string) nl2sql.Request {
	if schemaSummary == "" {
		schemaSummary = "No schema information available"
	}

	system := fmt.Sprintf(`You are a SQL expert answering data questions against an analytical warehouse.

Database schema:
%s

Rules:
- Only use SELECT statements (no INSERT, UPDATE, DELETE, DROP).
- Use appropriate JOINs when needed.
- Include a LIMIT clause to bound result size (max %d rows).
- Return valid PostgreSQL/Redshift syntax.
- Use table and column names exactly as shown in the schema.
- Put the SQL in a `+"```sql"+` code fence, followed by a one-sentence explanation.
- If the question cannot be answered with a query, reply conversationally instead.`,
		schemaSummary, c.MaxResultRows)

	turns := history
	if len(turns) > c.MaxHistoryTurns {
		turns = turns[len(turns)-c.MaxHistoryTurns:]
	}
	// The messages API requires the first turn to come from the user; if
	// the window cut an exchange in half, drop the orphaned assistant half.
	for len(turns) > 0 && turns[0].Role == conversation.RoleAssistant {
		turns = turns[1:]
	}

	messages := make([]nl2sql.Message, 0, len(turns)+1)
	for _, turn := range turns {
		role := "user"
		content := turn.Message
		if turn.Role == conversation.RoleAssistant {
			role = "assistant"
			if turn.SQL != "" {
				content = content + "\n```sql\n" + turn.SQL + "\n```"
			}
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		messages = append(messages, nl2sql.Message{Role: role, Content: content})
	}
	messages = append(messages, nl2sql.Message{Role: "user", Content: userMessage})

	return nl2sql.Request{System: system, Messages: messages}
}

// ComposeSummary builds the follow-up request that phrases query results as
// a natural-language answer. At most sampleRows rows are embedded.
func (c *Composer) ComposeSummary(question, sqlText string, result warehouse.QueryResult) nl2sql.Request {
	const sampleRows = 10
	sample := result.Rows
	if len(sample) > sampleRows {
		sample = sample[:sampleRows]
	}
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		sampleJSON = []byte("[]")
	}

	user := fmt.Sprintf(`Format the following query results into a clear answer.

User question: %s

SQL executed:
%s

Results (%d row(s) total, %d shown):
%s

Answer the question directly and conversationally, in plain text without markdown. If no rows were found, say so clearly.`,
		question, sqlText, result.RowCount, len(sample), sampleJSON)

	return nl2sql.Request{
		System:   "You summarize database query results for business users.",
		Messages: []nl2sql.Message{{Role: "user", Content: user}},
	}
}
