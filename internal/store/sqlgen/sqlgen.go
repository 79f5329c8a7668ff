// Package sqlgen renders storage-neutral predicates and orderings into SQL
// for the relational backends.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/rpattn/rdrstore/internal/domain"
	"github.com/rpattn/rdrstore/internal/store"
)

// Column names shared by every entity and history table.
const (
	VersionColumn    = "version"
	HistoryIDColumn  = "history_id"
	ChangeTypeColumn = "change_type"
	ChangedAtColumn  = "changed_at"
)

// Dialect captures the differences between SQL engines.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Bind converts a typed field value into a driver argument.
	Bind func(desc domain.FieldDescriptor, v any) any
	// LockSuffix is appended to row reads that take a row lock.
	LockSuffix string
	// ColumnType maps a field type to a column type for table creation.
	ColumnType func(t domain.FieldType) string
	// HistoryIDType is the column type of history row identifiers.
	HistoryIDType string
}

// Postgres uses $n parameters and native date/timestamp columns.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	Bind:        func(_ domain.FieldDescriptor, v any) any { return v },
	LockSuffix:  " FOR UPDATE",
	ColumnType: func(t domain.FieldType) string {
		switch t {
		case domain.FieldTypeInteger:
			return "BIGINT"
		case domain.FieldTypeDate:
			return "DATE"
		case domain.FieldTypeDateTime:
			return "TIMESTAMPTZ"
		}
		return "TEXT"
	},
	HistoryIDType: "UUID",
}

// Builder accumulates bind arguments while rendering one statement.
type Builder struct {
	dialect Dialect
	entity  *domain.EntityDescriptor
	args    []any
}

// NewBuilder starts a statement for entity e.
func NewBuilder(d Dialect, e *domain.EntityDescriptor) *Builder {
	return &Builder{dialect: d, entity: e, args: make([]any, 0)}
}

// Args returns the bind arguments collected so far.
func (b *Builder) Args() []any {
	return b.args
}

func (b *Builder) addArg(value any) string {
	b.args = append(b.args, value)
	return b.dialect.Placeholder(len(b.args))
}

func (b *Builder) bind(desc domain.FieldDescriptor, value any) string {
	return b.addArg(b.dialect.Bind(desc, value))
}

func (b *Builder) column(field string) (domain.FieldDescriptor, error) {
	d, ok := b.entity.Catalog.Resolve(field)
	if !ok {
		return domain.FieldDescriptor{}, fmt.Errorf("entity %s: unknown field %s", b.entity.Name, field)
	}
	return d, nil
}

var comparisonOperators = map[domain.Operator]string{
	domain.OperatorEquals:              "=",
	domain.OperatorNotEquals:           "<>",
	domain.OperatorLessThan:            "<",
	domain.OperatorLessThanOrEquals:    "<=",
	domain.OperatorGreaterThan:         ">",
	domain.OperatorGreaterThanOrEquals: ">=",
}

// Where renders p as a boolean SQL expression. A nil predicate renders "1 = 1".
func (b *Builder) Where(p domain.Predicate) (string, error) {
	switch v := p.(type) {
	case nil:
		return "1 = 1", nil
	case domain.False:
		return "1 = 0", nil
	case domain.IsNull:
		d, err := b.column(v.Field)
		if err != nil {
			return "", err
		}
		return d.Column + " IS NULL", nil
	case domain.NotNull:
		d, err := b.column(v.Field)
		if err != nil {
			return "", err
		}
		return d.Column + " IS NOT NULL", nil
	case domain.Compare:
		d, err := b.column(v.Field)
		if err != nil {
			return "", err
		}
		op, ok := comparisonOperators[v.Op]
		if !ok {
			return "", fmt.Errorf("unsupported comparison operator %s", v.Op)
		}
		return fmt.Sprintf("%s %s %s", d.Column, op, b.bind(d, v.Value)), nil
	case domain.And:
		return b.join(v, " AND ", "1 = 1")
	case domain.Or:
		return b.join(v, " OR ", "1 = 0")
	}
	return "", fmt.Errorf("unsupported predicate %T", p)
}

func (b *Builder) join(children []domain.Predicate, sep, empty string) (string, error) {
	if len(children) == 0 {
		return empty, nil
	}
	parts := make([]string, len(children))
	for i, child := range children {
		sql, err := b.Where(child)
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// OrderBy renders an ORDER BY clause with explicit NULL placement: NULLs
// compare below every value, so they come first ascending and last
// descending on every engine.
func (b *Builder) OrderBy(order []domain.OrderBy) (string, error) {
	if len(order) == 0 {
		return "", nil
	}
	parts := make([]string, len(order))
	for i, o := range order {
		d, err := b.column(o.Field)
		if err != nil {
			return "", err
		}
		if o.Ascending {
			parts[i] = d.Column + " ASC NULLS FIRST"
		} else {
			parts[i] = d.Column + " DESC NULLS LAST"
		}
	}
	return "ORDER BY " + strings.Join(parts, ", "), nil
}

// Columns lists the entity's columns in catalog order followed by version.
func Columns(e *domain.EntityDescriptor) []string {
	fields := e.Catalog.Fields()
	cols := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		cols = append(cols, f.Column)
	}
	return append(cols, VersionColumn)
}

// Select renders a bounded, ordered read of entity rows.
func Select(d Dialect, e *domain.EntityDescriptor, sel store.Selection) (string, []any, error) {
	b := NewBuilder(d, e)
	where, err := b.Where(sel.Where)
	if err != nil {
		return "", nil, err
	}
	order, err := b.OrderBy(sel.OrderBy)
	if err != nil {
		return "", nil, err
	}

	var sql strings.Builder
	fmt.Fprintf(&sql, "SELECT %s FROM %s WHERE %s", strings.Join(Columns(e), ", "), e.Table, where)
	if order != "" {
		sql.WriteString(" " + order)
	}
	if sel.Limit > 0 {
		sql.WriteString(" LIMIT " + b.addArg(sel.Limit))
	}
	if sel.Offset > 0 {
		if sel.Limit <= 0 {
			// sqlite requires a LIMIT before OFFSET; -1 means unbounded there
			// and Postgres accepts LIMIT ALL
			if d.Name == Postgres.Name {
				sql.WriteString(" LIMIT ALL")
			} else {
				sql.WriteString(" LIMIT -1")
			}
		}
		sql.WriteString(" OFFSET " + b.addArg(sel.Offset))
	}
	return sql.String(), b.Args(), nil
}

// Count renders an unordered, unbounded count.
func Count(d Dialect, e *domain.EntityDescriptor, where domain.Predicate) (string, []any, error) {
	b := NewBuilder(d, e)
	cond, err := b.Where(where)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", e.Table, cond), b.Args(), nil
}

// Get renders a primary-key lookup, optionally locking the row.
func Get(d Dialect, e *domain.EntityDescriptor, key []any, forUpdate bool) (string, []any, error) {
	b := NewBuilder(d, e)
	cond, err := b.Where(domain.KeyPredicate(e.IDFields, key))
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s", strings.Join(Columns(e), ", "), e.Table, cond)
	if forUpdate {
		sql += d.LockSuffix
	}
	return sql, b.Args(), nil
}

// Insert renders an insert of every catalog column plus version.
func Insert(d Dialect, e *domain.EntityDescriptor, rec domain.Record) (string, []any) {
	b := NewBuilder(d, e)
	fields := e.Catalog.Fields()
	placeholders := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		placeholders = append(placeholders, b.bind(f, rec.Fields[f.Name]))
	}
	placeholders = append(placeholders, b.addArg(rec.Version))
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		e.Table, strings.Join(Columns(e), ", "), strings.Join(placeholders, ", "))
	return sql, b.Args()
}

// Update renders a version-guarded full-row update.
func Update(d Dialect, e *domain.EntityDescriptor, rec domain.Record, expectedVersion int64) (string, []any, error) {
	b := NewBuilder(d, e)
	isID := make(map[string]bool, len(e.IDFields))
	for _, f := range e.IDFields {
		isID[f] = true
	}
	var sets []string
	for _, f := range e.Catalog.Fields() {
		if isID[f.Name] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", f.Column, b.bind(f, rec.Fields[f.Name])))
	}
	sets = append(sets, fmt.Sprintf("%s = %s", VersionColumn, b.addArg(rec.Version)))

	cond, err := b.Where(domain.KeyPredicate(e.IDFields, rec.Key(e.IDFields)))
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s AND %s = %s",
		e.Table, strings.Join(sets, ", "), cond, VersionColumn, b.addArg(expectedVersion))
	return sql, b.Args(), nil
}

// HistoryColumns lists history table columns.
func HistoryColumns(e *domain.EntityDescriptor) []string {
	return append([]string{HistoryIDColumn}, append(Columns(e), ChangeTypeColumn, ChangedAtColumn)...)
}

// InsertHistory renders an append to the history table.
func InsertHistory(d Dialect, e *domain.EntityDescriptor, h domain.HistoryRecord) (string, []any) {
	b := NewBuilder(d, e)
	placeholders := []string{b.addArg(h.ID.String())}
	for _, f := range e.Catalog.Fields() {
		placeholders = append(placeholders, b.bind(f, h.Fields[f.Name]))
	}
	placeholders = append(placeholders,
		b.addArg(h.Version),
		b.addArg(string(h.ChangeType)),
		b.bind(domain.FieldDescriptor{Name: ChangedAtColumn, Type: domain.FieldTypeDateTime}, h.ChangedAt),
	)
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		e.HistoryTable, strings.Join(HistoryColumns(e), ", "), strings.Join(placeholders, ", "))
	return sql, b.Args()
}

// ListHistory renders a read of every version of one row, oldest first.
func ListHistory(d Dialect, e *domain.EntityDescriptor, key []any) (string, []any, error) {
	b := NewBuilder(d, e)
	cond, err := b.Where(domain.KeyPredicate(e.IDFields, key))
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s ASC",
		strings.Join(HistoryColumns(e), ", "), e.HistoryTable, cond, VersionColumn)
	return sql, b.Args(), nil
}

// CreateTables renders idempotent DDL for the entity table and its history
// table.
func CreateTables(d Dialect, e *domain.EntityDescriptor) []string {
	fields := e.Catalog.Fields()
	defs := make([]string, 0, len(fields)+2)
	for _, f := range fields {
		defs = append(defs, f.Column+" "+d.ColumnType(f.Type))
	}
	defs = append(defs, VersionColumn+" "+d.ColumnType(domain.FieldTypeInteger)+" NOT NULL")

	keyCols := make([]string, len(e.IDFields))
	for i, name := range e.IDFields {
		f, _ := e.Catalog.Resolve(name)
		keyCols[i] = f.Column
	}
	key := strings.Join(keyCols, ", ")

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))",
			e.Table, strings.Join(defs, ", "), key),
	}
	if e.HistoryTable != "" {
		historyDefs := append([]string{HistoryIDColumn + " " + d.HistoryIDType + " PRIMARY KEY"}, defs...)
		historyDefs = append(historyDefs,
			ChangeTypeColumn+" TEXT NOT NULL",
			ChangedAtColumn+" "+d.ColumnType(domain.FieldTypeDateTime)+" NOT NULL",
		)
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, UNIQUE (%s, %s))",
			e.HistoryTable, strings.Join(historyDefs, ", "), key, VersionColumn))
	}
	return stmts
}
