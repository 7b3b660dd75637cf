package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/weknora-chat/ragstream/internal/utils"
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"gorm.io/gorm"
)

var databaseQueryTool = BaseTool{
	name: ToolDatabaseQuery,
	description: `Execute a read-only SQL query against this tenant's own conversation data.

## Security
- Only SELECT statements are accepted.
- Only the tables listed below may be referenced.
- tenant_id is injected automatically; do not include it in the query yourself.

## Available tables
- sessions(id, tenant_id, title, created_at, updated_at)
- messages(id, tenant_id, session_id, sender_kind, content, created_at)
- qa_cache_entries(id, tenant_id, thought_chain_id, question, answer, positive_count, negative_count, created_at)
- custom_agents(id, tenant_id, name, system_prompt, created_at)

## Examples
{"sql": "SELECT id, title, created_at FROM sessions ORDER BY created_at DESC LIMIT 5"}
{"sql": "SELECT sender_kind, COUNT(*) AS n FROM messages GROUP BY sender_kind"}`,
	schema: utils.GenerateSchema[DatabaseQueryInput](),
}

// DatabaseQueryInput is the tool's JSON argument shape.
type DatabaseQueryInput struct {
	SQL string `json:"sql" jsonschema:"The SELECT query to run. Do not include a tenant_id condition; it is added automatically."`
}

// SQLSecurityValidator parses the query with Postgres's own grammar
// (pg_query_go) instead of pattern-matching, adapted from
// agent/tools/database_query.go's validator and retargeted to this
// module's own table set.
type SQLSecurityValidator struct {
	allowedTables    map[string]bool
	allowedFunctions map[string]bool
	tenantID         uint64
}

func NewSQLSecurityValidator(tenantID uint64) *SQLSecurityValidator {
	return &SQLSecurityValidator{
		allowedTables: map[string]bool{
			"sessions":         true,
			"messages":         true,
			"qa_cache_entries": true,
			"custom_agents":    true,
		},
		allowedFunctions: map[string]bool{
			"count": true, "sum": true, "avg": true, "min": true, "max": true,
			"array_agg": true, "string_agg": true, "bool_and": true, "bool_or": true,
			"json_agg": true, "jsonb_agg": true,
			"coalesce": true, "nullif": true, "greatest": true, "least": true,
			"abs": true, "ceil": true, "floor": true, "round": true,
			"length": true, "lower": true, "upper": true, "trim": true, "ltrim": true, "rtrim": true,
			"substring": true, "concat": true, "concat_ws": true, "replace": true, "left": true, "right": true,
			"now": true, "current_date": true, "current_timestamp": true,
			"date_trunc": true, "extract": true, "to_char": true, "to_date": true, "to_timestamp": true,
			"date_part": true, "age": true,
		},
		tenantID: tenantID,
	}
}

// DatabaseQueryTool lets the ReAct engine run ad-hoc read-only analytics
// over the tenant's own rows (SPEC_FULL.md §C supplemental tool), adapted
// from agent/tools/database_query.go's DatabaseQueryTool.
type DatabaseQueryTool struct {
	BaseTool
	db *gorm.DB
}

func NewDatabaseQueryTool(db *gorm.DB) *DatabaseQueryTool {
	return &DatabaseQueryTool{BaseTool: databaseQueryTool, db: db}
}

func (t *DatabaseQueryTool) Execute(ctx context.Context, args json.RawMessage) (*types.ToolResult, error) {
	tenantID := uint64(0)
	if tid, ok := ctx.Value(types.TenantIDContextKey).(uint64); ok {
		tenantID = tid
	}

	var input DatabaseQueryInput
	if err := json.Unmarshal(args, &input); err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to parse args: %v", err)}, nil
	}
	if input.SQL == "" {
		return &types.ToolResult{Success: false, Error: "missing 'sql' parameter"}, nil
	}

	securedSQL, err := NewSQLSecurityValidator(tenantID).ValidateAndSecure(input.SQL)
	if err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("query rejected: %v", err)}, nil
	}

	rows, err := t.db.WithContext(ctx).Raw(securedSQL).Rows()
	if err != nil {
		logger.Warnf(ctx, "database_query execution failed: %v", err)
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("query execution failed: %v", err)}, nil
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to read columns: %v", err)}, nil
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return &types.ToolResult{Success: false, Error: fmt.Sprintf("failed to scan row: %v", err)}, nil
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return &types.ToolResult{Success: false, Error: fmt.Sprintf("error iterating rows: %v", err)}, nil
	}

	return &types.ToolResult{
		Success: true,
		Output:  formatQueryResults(columns, results, securedSQL),
		Data: map[string]any{
			"columns":      columns,
			"rows":         results,
			"row_count":    len(results),
			"query":        securedSQL,
			"display_type": "database_query",
		},
	}, nil
}

// ValidateAndSecure parses sqlQuery, rejects anything but a single
// SELECT over the whitelist, and injects a tenant_id predicate per table
// referenced.
func (v *SQLSecurityValidator) ValidateAndSecure(sqlQuery string) (string, error) {
	if err := v.validateInput(sqlQuery); err != nil {
		return "", err
	}

	result, err := pg_query.Parse(sqlQuery)
	if err != nil {
		return "", fmt.Errorf("SQL parse error: %v", err)
	}
	if len(result.Stmts) == 0 {
		return "", fmt.Errorf("empty query")
	}
	if len(result.Stmts) > 1 {
		return "", fmt.Errorf("multiple statements are not allowed")
	}

	selectStmt := result.Stmts[0].Stmt.GetSelectStmt()
	if selectStmt == nil {
		return "", fmt.Errorf("only SELECT queries are allowed")
	}

	tablesInQuery, err := v.validateSelectStmt(selectStmt)
	if err != nil {
		return "", err
	}

	normalizedSQL, err := pg_query.Deparse(result)
	if err != nil {
		return "", fmt.Errorf("failed to normalize SQL: %v", err)
	}

	return v.injectTenantConditions(normalizedSQL, tablesInQuery), nil
}

func (v *SQLSecurityValidator) validateInput(sql string) error {
	if strings.Contains(sql, "\x00") {
		return fmt.Errorf("invalid character in SQL query")
	}
	if len(sql) < 6 {
		return fmt.Errorf("SQL query too short")
	}
	if len(sql) > 4096 {
		return fmt.Errorf("SQL query too long (max 4096 characters)")
	}
	return nil
}

func (v *SQLSecurityValidator) validateSelectStmt(stmt *pg_query.SelectStmt) (map[string]string, error) {
	tablesInQuery := make(map[string]string)

	if stmt.Op != pg_query.SetOperation_SETOP_NONE {
		return nil, fmt.Errorf("compound queries (UNION/INTERSECT/EXCEPT) are not allowed")
	}
	if stmt.WithClause != nil {
		return nil, fmt.Errorf("WITH clause (CTEs) is not allowed")
	}
	if stmt.IntoClause != nil {
		return nil, fmt.Errorf("SELECT INTO is not allowed")
	}
	if len(stmt.LockingClause) > 0 {
		return nil, fmt.Errorf("locking clauses (FOR UPDATE, etc.) are not allowed")
	}

	for _, fromItem := range stmt.FromClause {
		if err := v.validateFromItem(fromItem, tablesInQuery); err != nil {
			return nil, err
		}
	}
	for _, target := range stmt.TargetList {
		if err := v.validateNode(target); err != nil {
			return nil, err
		}
	}
	if stmt.WhereClause != nil {
		if err := v.validateNode(stmt.WhereClause); err != nil {
			return nil, err
		}
	}
	for _, groupBy := range stmt.GroupClause {
		if err := v.validateNode(groupBy); err != nil {
			return nil, err
		}
	}
	if stmt.HavingClause != nil {
		if err := v.validateNode(stmt.HavingClause); err != nil {
			return nil, err
		}
	}
	for _, sortBy := range stmt.SortClause {
		if err := v.validateNode(sortBy); err != nil {
			return nil, err
		}
	}

	if len(tablesInQuery) == 0 {
		return nil, fmt.Errorf("no valid table found in query")
	}
	return tablesInQuery, nil
}

func (v *SQLSecurityValidator) validateFromItem(node *pg_query.Node, tables map[string]string) error {
	if node == nil {
		return nil
	}
	if rv := node.GetRangeVar(); rv != nil {
		tableName := strings.ToLower(rv.Relname)
		if rv.Schemaname != "" && strings.ToLower(rv.Schemaname) != "public" {
			return fmt.Errorf("access to schema %q is not allowed", rv.Schemaname)
		}
		if !v.allowedTables[tableName] {
			return fmt.Errorf("table not allowed: %s", rv.Relname)
		}
		alias := tableName
		if rv.Alias != nil && rv.Alias.Aliasname != "" {
			alias = strings.ToLower(rv.Alias.Aliasname)
		}
		tables[tableName] = alias
		return nil
	}
	if je := node.GetJoinExpr(); je != nil {
		if err := v.validateFromItem(je.Larg, tables); err != nil {
			return err
		}
		if err := v.validateFromItem(je.Rarg, tables); err != nil {
			return err
		}
		if je.Quals != nil {
			return v.validateNode(je.Quals)
		}
		return nil
	}
	if node.GetRangeSubselect() != nil {
		return fmt.Errorf("subqueries in FROM clause are not allowed")
	}
	if node.GetRangeFunction() != nil {
		return fmt.Errorf("functions in FROM clause are not allowed")
	}
	return nil
}

func (v *SQLSecurityValidator) validateNode(node *pg_query.Node) error {
	if node == nil {
		return nil
	}
	if node.GetSubLink() != nil {
		return fmt.Errorf("subqueries are not allowed")
	}
	if fc := node.GetFuncCall(); fc != nil {
		return v.validateFuncCall(fc)
	}
	if cr := node.GetColumnRef(); cr != nil {
		return v.validateColumnRef(cr)
	}
	if tc := node.GetTypeCast(); tc != nil {
		if err := v.validateNode(tc.Arg); err != nil {
			return err
		}
		if tc.TypeName != nil && strings.HasPrefix(strings.ToLower(v.typeName(tc.TypeName)), "pg_") {
			return fmt.Errorf("casting to system type %q is not allowed", v.typeName(tc.TypeName))
		}
	}
	if ae := node.GetAExpr(); ae != nil {
		if err := v.validateNode(ae.Lexpr); err != nil {
			return err
		}
		if err := v.validateNode(ae.Rexpr); err != nil {
			return err
		}
	}
	if be := node.GetBoolExpr(); be != nil {
		for _, arg := range be.Args {
			if err := v.validateNode(arg); err != nil {
				return err
			}
		}
	}
	if nt := node.GetNullTest(); nt != nil {
		if err := v.validateNode(nt.Arg); err != nil {
			return err
		}
	}
	if ce := node.GetCoalesceExpr(); ce != nil {
		for _, arg := range ce.Args {
			if err := v.validateNode(arg); err != nil {
				return err
			}
		}
	}
	if caseExpr := node.GetCaseExpr(); caseExpr != nil {
		if err := v.validateNode(caseExpr.Arg); err != nil {
			return err
		}
		for _, when := range caseExpr.Args {
			if err := v.validateNode(when); err != nil {
				return err
			}
		}
		if err := v.validateNode(caseExpr.Defresult); err != nil {
			return err
		}
	}
	if cw := node.GetCaseWhen(); cw != nil {
		if err := v.validateNode(cw.Expr); err != nil {
			return err
		}
		if err := v.validateNode(cw.Result); err != nil {
			return err
		}
	}
	if rt := node.GetResTarget(); rt != nil {
		if err := v.validateNode(rt.Val); err != nil {
			return err
		}
	}
	if sb := node.GetSortBy(); sb != nil {
		if err := v.validateNode(sb.Node); err != nil {
			return err
		}
	}
	if list := node.GetList(); list != nil {
		for _, item := range list.Items {
			if err := v.validateNode(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *SQLSecurityValidator) validateFuncCall(fc *pg_query.FuncCall) error {
	funcName := ""
	for _, namePart := range fc.Funcname {
		if s := namePart.GetString_(); s != nil {
			funcName = strings.ToLower(s.Sval)
		}
	}
	if len(fc.Funcname) > 1 {
		schemaName := ""
		if s := fc.Funcname[0].GetString_(); s != nil {
			schemaName = strings.ToLower(s.Sval)
		}
		if schemaName != "" && schemaName != "pg_catalog" {
			return fmt.Errorf("schema-qualified function calls are not allowed: %s", schemaName)
		}
	}
	for _, prefix := range []string{"pg_", "lo_", "dblink", "file_", "copy_"} {
		if strings.HasPrefix(funcName, prefix) {
			return fmt.Errorf("function %q is not allowed (dangerous prefix)", funcName)
		}
	}
	dangerous := map[string]bool{
		"current_setting": true, "set_config": true, "query_to_xml": true,
		"xpath": true, "xmlparse": true, "txid_current": true,
	}
	if dangerous[funcName] {
		return fmt.Errorf("function %q is not allowed", funcName)
	}
	if !v.allowedFunctions[funcName] {
		return fmt.Errorf("function not allowed: %s", funcName)
	}
	for _, arg := range fc.Args {
		if err := v.validateNode(arg); err != nil {
			return err
		}
	}
	return nil
}

func (v *SQLSecurityValidator) validateColumnRef(cr *pg_query.ColumnRef) error {
	systemColumns := map[string]bool{"xmin": true, "xmax": true, "cmin": true, "cmax": true, "ctid": true, "tableoid": true}
	for _, field := range cr.Fields {
		if s := field.GetString_(); s != nil {
			colName := strings.ToLower(s.Sval)
			if systemColumns[colName] {
				return fmt.Errorf("access to system column %q is not allowed", colName)
			}
			if strings.HasPrefix(colName, "pg_") {
				return fmt.Errorf("access to %q is not allowed", colName)
			}
		}
	}
	return nil
}

func (v *SQLSecurityValidator) typeName(tn *pg_query.TypeName) string {
	var parts []string
	for _, name := range tn.Names {
		if s := name.GetString_(); s != nil {
			parts = append(parts, s.Sval)
		}
	}
	return strings.Join(parts, ".")
}

// injectTenantConditions adds a tenant_id predicate for every
// tenant-scoped table referenced in the query.
func (v *SQLSecurityValidator) injectTenantConditions(sql string, tablesInQuery map[string]string) string {
	var conditions []string
	for tableName, alias := range tablesInQuery {
		if v.allowedTables[tableName] {
			conditions = append(conditions, fmt.Sprintf("%s.tenant_id = %d", alias, v.tenantID))
		}
	}
	if len(conditions) == 0 {
		return sql
	}
	tenantFilter := strings.Join(conditions, " AND ")

	wherePattern := regexp.MustCompile(`(?i)\bWHERE\b`)
	if wherePattern.MatchString(sql) {
		return wherePattern.ReplaceAllString(sql, fmt.Sprintf("WHERE %s AND ", tenantFilter))
	}
	clausePattern := regexp.MustCompile(`(?i)\b(GROUP BY|ORDER BY|LIMIT|OFFSET|HAVING|FETCH)\b`)
	if loc := clausePattern.FindStringIndex(sql); loc != nil {
		return sql[:loc[0]] + fmt.Sprintf(" WHERE %s ", tenantFilter) + sql[loc[0]:]
	}
	return fmt.Sprintf("%s WHERE %s", sql, tenantFilter)
}

func formatQueryResults(columns []string, results []map[string]any, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n", query)
	fmt.Fprintf(&b, "Rows returned: %d\n\n", len(results))
	if len(results) == 0 {
		b.WriteString("No matching rows.\n")
		return b.String()
	}
	for i, row := range results {
		fmt.Fprintf(&b, "--- row %d ---\n", i+1)
		for _, col := range columns {
			v := row[col]
			var formatted string
			switch value := v.(type) {
			case nil:
				formatted = "<NULL>"
			case string:
				formatted = value
			default:
				if raw, err := json.Marshal(value); err == nil {
					formatted = string(raw)
				} else {
					formatted = fmt.Sprintf("%v", value)
				}
			}
			fmt.Fprintf(&b, "  %s: %s\n", col, formatted)
		}
	}
	return b.String()
}
