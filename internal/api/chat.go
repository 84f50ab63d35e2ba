package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/finchat/finchat/internal/conversation"
	"github.com/finchat/finchat/internal/warehouse"
)

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

type chatResponse struct {
	ConversationID string        `json:"conversation_id"`
	Response       string        `json:"response"`
	SQLQuery       string        `json:"sql_query,omitempty"`
	Results        *queryResults `json:"results,omitempty"`
	ExecutionTime  *float64      `json:"execution_time,omitempty"`
	Error          string        `json:"error,omitempty"`
}

type queryResults struct {
	Columns   []string                     `json:"columns"`
	Rows      []map[string]warehouse.Value `json:"rows"`
	RowCount  int                          `json:"row_count"`
	Truncated bool                         `json:"truncated"`
}

// handleChat is the conversational entry point. Pipeline failures still
// answer 200 with a readable response and an error field; only malformed
// requests and unknown conversation ids map to HTTP errors.
func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON", false, nil)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "message is required", false, nil)
		return
	}

	result, err := deps.Chat.Handle(r.Context(), strings.TrimSpace(req.ConversationID), req.Message)
	if err != nil {
		if errors.Is(err, conversation.ErrUnknownConversation) {
			writeError(r.Context(), w, http.StatusNotFound, "UNKNOWN_CONVERSATION", "conversation not found; omit conversation_id to start a new one", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", err.Error(), true, nil)
		return
	}

	resp := chatResponse{
		ConversationID: result.ConversationID,
		Response:       result.Response,
		SQLQuery:       result.SQL,
		Error:          result.Err,
	}
	// execution_time reports warehouse query time and only exists when a
	// query actually ran.
	if result.QueryResult != nil {
		seconds := result.QueryResult.Duration.Seconds()
		resp.ExecutionTime = &seconds
		resp.Results = &queryResults{
			Columns:   result.QueryResult.Columns,
			Rows:      result.QueryResult.Rows,
			RowCount:  result.QueryResult.RowCount,
			Truncated: result.QueryResult.Truncated,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
