package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
)

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Schema struct {
	Name   string  `json:"schema"`
	Tables []Table `json:"tables"`
}

// SchemaCache reads table and column descriptions from the warehouse and
// caches them for a TTL, so every chat turn does not hit information_schema.
type SchemaCache struct {
	db     *sql.DB
	schema string
	ttl    time.Duration

	mu        sync.Mutex
	cached    *Schema
	fetchedAt time.Time
}

func NewSchemaCache(db *sql.DB, schema string, ttl time.Duration) *SchemaCache {
	if schema == "" {
		schema = "public"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SchemaCache{db: db, schema: schema, ttl: ttl}
}

const schemaQuery = `
SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

func (c *SchemaCache) Schema(ctx context.Context) (Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Since(c.fetchedAt) < c.ttl {
		return *c.cached, nil
	}

	rows, err := c.db.QueryContext(ctx, schemaQuery, c.schema)
	if err != nil {
		return Schema{}, fmt.Errorf("query schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	schema := Schema{Name: c.schema}
	var current *Table
	for rows.Next() {
		var tableName, columnName, dataType string
		if err := rows.Scan(&tableName, &columnName, &dataType); err != nil {
			return Schema{}, fmt.Errorf("scan schema row: %w", err)
		}
		if current == nil || current.Name != tableName {
			schema.Tables = append(schema.Tables, Table{Name: tableName})
			current = &schema.Tables[len(schema.Tables)-1]
		}
		current.Columns = append(current.Columns, Column{Name: columnName, Type: dataType})
	}
	if err := rows.Err(); err != nil {
		return Schema{}, fmt.Errorf("iterate schema rows: %w", err)
	}

	c.cached = &schema
	c.fetchedAt = time.Now()
	return schema, nil
}

// Summary renders the schema as one line per table for prompt context.
func (c *SchemaCache) Summary(ctx context.Context) (string, error) {
	schema, err := c.Schema(ctx)
	if err != nil {
		return "", err
	}
	return schema.Summary(), nil
}

func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached = nil
}

func (s Schema) Summary() string {
	if len(s.Tables) == 0 {
		return "No schema information available"
	}
	lines := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		if len(table.Columns) == 0 {
			lines = append(lines, table.Name)
			continue
		}
		defs := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			defs = append(defs, fmt.Sprintf("%s (%s)", column.Name, column.Type))
		}
		lines = append(lines, table.Name+": "+strings.Join(defs, ", "))
	}
	return strings.Join(lines, "\n")
}
