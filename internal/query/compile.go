package query

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"taskroster/internal/domain"
)

// TimeLayout is the fixed-width UTC layout timestamps are stored in, so that
// text comparison orders them chronologically.
const TimeLayout = "2006-01-02T15:04:05.000Z"

type Kind int

const (
	String Kind = iota
	Bool
	Time
	Set
)

// SetRelation describes a set-valued field stored as rows of a side table.
type SetRelation struct {
	Table       string
	OwnerColumn string
	ValueColumn string
}

type Field struct {
	Column string
	Kind   Kind
	Set    *SetRelation
}

// Schema maps public field names onto the columns of one table.
type Schema struct {
	Entity string
	Table  string
	Fields map[string]Field
}

func (s Schema) lookup(name string) (string, Field, error) {
	name = canonicalName(name)
	f, ok := s.Fields[name]
	if !ok {
		return "", Field{}, domain.InvalidArgument("unknown %s field %q", s.Entity, name)
	}
	return name, f, nil
}

// Statement is a compiled query ready to be appended to a SELECT.
type Statement struct {
	Where      string
	Args       []any
	OrderBy    string
	Limit      int
	Offset     int
	Count      bool
	Projection Projection
}

// Tail returns the WHERE, ORDER BY and LIMIT clauses with their arguments.
func (st Statement) Tail() (string, []any) {
	var b strings.Builder
	args := append([]any(nil), st.Args...)
	if st.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(st.Where)
	}
	if st.Count {
		return b.String(), args
	}
	if st.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(st.OrderBy)
	}
	switch {
	case st.Limit > 0:
		b.WriteString(" LIMIT ?")
		args = append(args, st.Limit)
	case st.Offset > 0:
		b.WriteString(" LIMIT -1")
	}
	if st.Offset > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, st.Offset)
	}
	return b.String(), args
}

// Compile checks field names and value types against the schema. For
// count-only queries sort, projection, skip and limit are dropped.
func Compile(q Query, s Schema) (Statement, error) {
	st := Statement{Count: q.Count}
	var clauses []string
	for _, c := range q.Filter {
		_, f, err := s.lookup(c.Field)
		if err != nil {
			return Statement{}, err
		}
		clause, args, err := s.condition(c, f)
		if err != nil {
			return Statement{}, err
		}
		clauses = append(clauses, clause)
		st.Args = append(st.Args, args...)
	}
	st.Where = strings.Join(clauses, " AND ")
	if q.Count {
		return st, nil
	}

	var order []string
	for _, sf := range q.Sort {
		_, f, err := s.lookup(sf.Field)
		if err != nil {
			return Statement{}, err
		}
		if f.Kind == Set {
			return Statement{}, domain.InvalidArgument("cannot sort by set field %q", sf.Field)
		}
		dir := "ASC"
		if sf.Desc {
			dir = "DESC"
		}
		order = append(order, fmt.Sprintf("%s.%s %s", s.Table, f.Column, dir))
	}
	order = append(order, s.Table+".rowid ASC")
	st.OrderBy = strings.Join(order, ", ")

	proj := q.Projection
	names := make([]string, 0, len(proj.Fields))
	for _, name := range proj.Fields {
		canon, _, err := s.lookup(name)
		if err != nil {
			return Statement{}, err
		}
		names = append(names, canon)
	}
	proj.Fields = names
	st.Projection = proj
	st.Limit = q.Limit
	st.Offset = q.Skip
	return st, nil
}

func (s Schema) condition(c Condition, f Field) (string, []any, error) {
	if f.Kind == Set {
		return s.setCondition(c, f)
	}
	col := s.Table + "." + f.Column
	switch c.Op {
	case OpIn, OpNin:
		list := c.Value.([]any)
		if len(list) == 0 {
			if c.Op == OpIn {
				return "0", nil, nil
			}
			return "1", nil, nil
		}
		args := make([]any, 0, len(list))
		for _, item := range list {
			v, err := convert(c.Field, f.Kind, item)
			if err != nil {
				return "", nil, err
			}
			args = append(args, v)
		}
		kw := "IN"
		if c.Op == OpNin {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, kw, placeholders(len(args))), args, nil
	}
	v, err := convert(c.Field, f.Kind, c.Value)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s %s ?", col, sqlOperator(c.Op)), []any{v}, nil
}

func (s Schema) setCondition(c Condition, f Field) (string, []any, error) {
	rel := f.Set
	var values []any
	switch c.Op {
	case OpEq, OpNe:
		v, err := convert(c.Field, String, c.Value)
		if err != nil {
			return "", nil, err
		}
		values = []any{v}
	case OpIn, OpNin:
		for _, item := range c.Value.([]any) {
			v, err := convert(c.Field, String, item)
			if err != nil {
				return "", nil, err
			}
			values = append(values, v)
		}
	default:
		return "", nil, domain.InvalidArgument("operator %s is not supported on set field %q", c.Op, c.Field)
	}
	if len(values) == 0 {
		if c.Op == OpIn {
			return "0", nil, nil
		}
		return "1", nil, nil
	}
	exists := fmt.Sprintf("EXISTS (SELECT 1 FROM %s s WHERE s.%s = %s.%s AND s.%s IN (%s))",
		rel.Table, rel.OwnerColumn, s.Table, s.Fields["id"].Column, rel.ValueColumn, placeholders(len(values)))
	if c.Op == OpNe || c.Op == OpNin {
		exists = "NOT " + exists
	}
	return exists, values, nil
}

func sqlOperator(op Op) string {
	switch op {
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return "="
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func convert(field string, kind Kind, v any) (any, error) {
	switch kind {
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, domain.InvalidArgument("where.%s expects a boolean", field)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case Time:
		switch x := v.(type) {
		case string:
			t, err := domain.ParseInstant(x)
			if err != nil {
				return nil, domain.InvalidArgument("where.%s: %v", field, err)
			}
			return t.Format(TimeLayout), nil
		case json.Number:
			ms, err := x.Int64()
			if err != nil {
				return nil, domain.InvalidArgument("where.%s expects a timestamp", field)
			}
			return time.UnixMilli(ms).UTC().Format(TimeLayout), nil
		}
		return nil, domain.InvalidArgument("where.%s expects a timestamp", field)
	default:
		s, ok := v.(string)
		if !ok {
			return nil, domain.InvalidArgument("where.%s expects a string", field)
		}
		return s, nil
	}
}
