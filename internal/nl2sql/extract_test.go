package nl2sql

import (
	"strings"
	"testing"
)

func TestExtractSQLFromFence(t *testing.T) {
	sqlText, explanation := ExtractSQL("Here is the query:\n```sql\nSELECT account_id FROM accounts LIMIT 10\n```\nIt lists account ids.")
	if sqlText != "SELECT account_id FROM accounts LIMIT 10" {
		t.Fatalf("sql = %q", sqlText)
	}
	if !strings.Contains(explanation, "lists account ids") {
		t.Fatalf("explanation = %q", explanation)
	}
}

func TestExtractSQLFromBareFence(t *testing.T) {
	sqlText, _ := ExtractSQL("```\nSELECT 1\n```")
	if sqlText != "SELECT 1" {
		t.Fatalf("sql = %q", sqlText)
	}
}

func TestExtractSQLFromProse(t *testing.T) {
	sqlText, explanation := ExtractSQL("You could run SELECT name FROM accounts WHERE active; that shows active accounts.")
	if sqlText != "SELECT name FROM accounts WHERE active" {
		t.Fatalf("sql = %q", sqlText)
	}
	if !strings.Contains(explanation, "active accounts") {
		t.Fatalf("explanation = %q", explanation)
	}
}

func TestExtractSQLRawStatement(t *testing.T) {
	sqlText, explanation := ExtractSQL("WITH t AS (SELECT 1 AS n) SELECT n FROM t")
	if sqlText != "WITH t AS (SELECT 1 AS n) SELECT n FROM t" {
		t.Fatalf("sql = %q", sqlText)
	}
	if explanation != "" {
		t.Fatalf("explanation = %q", explanation)
	}
}

func TestExtractSQLConversationalReply(t *testing.T) {
	reply := "Could you clarify which fiscal year you mean?"
	sqlText, explanation := ExtractSQL(reply)
	if sqlText != "" {
		t.Fatalf("sql = %q, want empty", sqlText)
	}
	if explanation != reply {
		t.Fatalf("explanation = %q", explanation)
	}
}

func TestExtractSQLIgnoresUnparseableCandidate(t *testing.T) {
	sqlText, explanation := ExtractSQL("I would select a few options for you to review.")
	if sqlText != "" {
		t.Fatalf("sql = %q, want empty", sqlText)
	}
	if explanation == "" {
		t.Fatal("explanation should carry the reply")
	}
}

func TestExtractSQLEmpty(t *testing.T) {
	sqlText, explanation := ExtractSQL("   ")
	if sqlText != "" || explanation != "" {
		t.Fatalf("got %q / %q", sqlText, explanation)
	}
}
