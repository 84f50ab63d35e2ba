// Package sqlguard decides whether candidate SQL produced by the generator
// may reach the warehouse. It parses the real Postgres grammar and walks the
// full parse tree; anything it cannot positively identify as a single
// bounded read query is rejected. String matching is not trusted anywhere in
// this package.
package sqlguard

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

type Reason string

const (
	ReasonUnparseable             Reason = "UNPARSEABLE"
	ReasonMultipleStatements      Reason = "MULTIPLE_STATEMENTS"
	ReasonWriteOperationForbidden Reason = "WRITE_OPERATION_FORBIDDEN"
	ReasonSchemaNotAllowed        Reason = "SCHEMA_NOT_ALLOWED"
)

// Verdict is the outcome of validating one candidate query. When accepted,
// SQL holds the canonical, limit-enforced rewrite of the input.
type Verdict struct {
	Accepted bool
	Reason   Reason
	Detail   string
	SQL      string
}

// Validator enforces the read-only query policy. maxRows is the row cap;
// a missing or oversized LIMIT clause is rewritten to fetch one row past it
// so truncation stays observable downstream. allowedTables, when non-empty,
// restricts which objects a query may reference.
type Validator struct {
	maxRows int
	allowed map[string]bool
}

func NewValidator(maxRows int, allowedTables []string) *Validator {
	if maxRows <= 0 {
		maxRows = 1000
	}
	var allowed map[string]bool
	if len(allowedTables) > 0 {
		allowed = make(map[string]bool, len(allowedTables))
		for _, table := range allowedTables {
			allowed[strings.ToLower(strings.TrimSpace(table))] = true
		}
	}
	return &Validator{maxRows: maxRows, allowed: allowed}
}

func rejected(reason Reason, detail string) Verdict {
	return Verdict{Accepted: false, Reason: reason, Detail: detail}
}

// Validate inspects one candidate statement and fails closed: any parse
// error, ambiguity, or non-read construct anywhere in the tree is a
// rejection, never a pass-through.
func (v *Validator) Validate(candidate string) Verdict {
	parsed, err := pg_query.Parse(candidate)
	if err != nil {
		return rejected(ReasonUnparseable, err.Error())
	}
	if len(parsed.Stmts) == 0 {
		return rejected(ReasonUnparseable, "no statement found")
	}
	if len(parsed.Stmts) > 1 {
		return rejected(ReasonMultipleStatements, fmt.Sprintf("%d statements present", len(parsed.Stmts)))
	}

	sel := parsed.Stmts[0].GetStmt().GetSelectStmt()
	if sel == nil {
		return rejected(ReasonWriteOperationForbidden, "top-level statement is not a SELECT")
	}

	inspection, err := inspect(parsed.ProtoReflect())
	if err != nil {
		return rejected(ReasonWriteOperationForbidden, err.Error())
	}

	if v.allowed != nil {
		for _, relation := range inspection.relations {
			if inspection.cteNames[relation.bare] && relation.schema == "" {
				continue
			}
			if v.allowed[relation.qualified] || v.allowed[relation.bare] {
				continue
			}
			return rejected(ReasonSchemaNotAllowed, fmt.Sprintf("relation %q is not in the allow-list", relation.qualified))
		}
	}

	enforceLimit(sel, v.maxRows)

	canonical, err := pg_query.Deparse(parsed)
	if err != nil {
		return rejected(ReasonUnparseable, fmt.Sprintf("deparse: %v", err))
	}
	return Verdict{Accepted: true, SQL: canonical}
}

type relationRef struct {
	schema    string
	bare      string
	qualified string
}

type inspection struct {
	cteNames  map[string]bool
	relations []relationRef
}

// inspect walks every node of the parse tree. Statement nodes other than the
// select itself mean a mutating or utility operation is embedded somewhere
// (CTE, subquery, anywhere), and locking or SELECT INTO clauses turn a read
// into a write.
func inspect(root protoreflect.Message) (inspection, error) {
	result := inspection{cteNames: map[string]bool{}}
	err := walkMessages(root, func(m protoreflect.Message) error {
		switch name := string(m.Descriptor().Name()); name {
		case "ParseResult", "RawStmt", "SelectStmt":
			// allowed containers
		case "LockingClause":
			return fmt.Errorf("row locking (FOR UPDATE/SHARE) is not allowed")
		case "IntoClause":
			return fmt.Errorf("SELECT INTO is not allowed")
		case "CommonTableExpr":
			if cte, ok := m.Interface().(*pg_query.CommonTableExpr); ok {
				result.cteNames[strings.ToLower(cte.Ctename)] = true
			}
		case "RangeVar":
			if rv, ok := m.Interface().(*pg_query.RangeVar); ok {
				ref := relationRef{
					schema: strings.ToLower(rv.Schemaname),
					bare:   strings.ToLower(rv.Relname),
				}
				ref.qualified = ref.bare
				if ref.schema != "" {
					ref.qualified = ref.schema + "." + ref.bare
				}
				result.relations = append(result.relations, ref)
			}
		default:
			if strings.HasSuffix(name, "Stmt") {
				return fmt.Errorf("statement %s is not allowed", name)
			}
		}
		return nil
	})
	if err != nil {
		return inspection{}, err
	}
	return result, nil
}

func walkMessages(m protoreflect.Message, visit func(protoreflect.Message) error) error {
	if err := visit(m); err != nil {
		return err
	}
	var walkErr error
	m.Range(func(fd protoreflect.FieldDescriptor, value protoreflect.Value) bool {
		switch {
		case fd.IsList():
			if fd.Kind() != protoreflect.MessageKind {
				return true
			}
			list := value.List()
			for i := 0; i < list.Len(); i++ {
				if walkErr = walkMessages(list.Get(i).Message(), visit); walkErr != nil {
					return false
				}
			}
		case fd.IsMap():
			// the parse tree has no map fields
		case fd.Kind() == protoreflect.MessageKind:
			walkErr = walkMessages(value.Message(), visit)
		}
		return walkErr == nil
	})
	return walkErr
}

// enforceLimit bounds how many rows the statement can fetch. An explicit
// integer LIMIT at or under the cap is kept; anything else (missing limit,
// oversized limit, non-integer limit expression) is rewritten to one past
// the cap, so the executor can still see that more rows were available and
// flag the result as truncated.
func enforceLimit(sel *pg_query.SelectStmt, maxRows int) {
	if sel.LimitCount != nil {
		if existing, ok := integerLimit(sel.LimitCount); ok && existing >= 0 && existing <= int64(maxRows) {
			return
		}
	}
	sel.LimitCount = makeIntConst(int64(maxRows) + 1)
	sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
}

func integerLimit(node *pg_query.Node) (int64, bool) {
	aConst := node.GetAConst()
	if aConst == nil {
		return 0, false
	}
	ival := aConst.GetIval()
	if ival == nil {
		return 0, false
	}
	return int64(ival.Ival), true
}

func makeIntConst(value int64) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val:      &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(value)}},
				Location: -1,
			},
		},
	}
}
