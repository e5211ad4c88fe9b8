// Package query turns loosely typed list parameters (JSON filter, sort and
// projection documents plus skip, limit and count) into SQL fragments for a
// table described by a Schema. All validation happens here so malformed input
// never reaches the store.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"taskroster/internal/domain"
)

// Params carries the raw list parameters as received from a caller.
type Params struct {
	Where  string
	Sort   string
	Select string
	Skip   string
	Limit  string
	Count  string
}

type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
	OpNin Op = "$nin"
)

var knownOps = map[Op]bool{OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpIn: true, OpNin: true}

// Condition is one field predicate. Value holds a string, bool, json.Number
// or, for $in/$nin, a []any of those.
type Condition struct {
	Field string
	Op    Op
	Value any
}

type SortField struct {
	Field string
	Desc  bool
}

// Projection selects the fields returned for each record. An empty
// projection returns everything.
type Projection struct {
	Fields    []string
	Exclude   bool
	ExcludeID bool
}

func (p Projection) IsZero() bool {
	return len(p.Fields) == 0 && !p.ExcludeID
}

type Query struct {
	Filter     []Condition
	Sort       []SortField
	Projection Projection
	Skip       int
	Limit      int
	HasLimit   bool
	Count      bool
}

// Parse validates the shape of every parameter.
func Parse(p Params) (Query, error) {
	var q Query
	var err error
	if q.Filter, err = parseWhere(p.Where); err != nil {
		return Query{}, err
	}
	if q.Sort, err = parseSort(p.Sort); err != nil {
		return Query{}, err
	}
	if q.Projection, err = ParseSelect(p.Select); err != nil {
		return Query{}, err
	}
	if q.Skip, _, err = parseCount("skip", p.Skip); err != nil {
		return Query{}, err
	}
	if q.Limit, q.HasLimit, err = parseCount("limit", p.Limit); err != nil {
		return Query{}, err
	}
	if s := strings.TrimSpace(p.Count); s != "" {
		q.Count, err = strconv.ParseBool(s)
		if err != nil {
			return Query{}, domain.InvalidArgument("count must be true or false, got %q", p.Count)
		}
	}
	return q, nil
}

func parseCount(name, raw string) (int, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false, domain.InvalidArgument("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, true, nil
}

func decodeObject(name, raw string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, domain.InvalidArgument("%s must be a JSON object", name)
	}
	if dec.More() {
		return nil, domain.InvalidArgument("%s must be a single JSON object", name)
	}
	return obj, nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func parseWhere(raw string) ([]Condition, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	obj, err := decodeObject("where", raw)
	if err != nil {
		return nil, err
	}
	var conds []Condition
	for field, rawVal := range obj {
		val, err := decodeValue(rawVal)
		if err != nil {
			return nil, domain.InvalidArgument("where.%s: %v", field, err)
		}
		ops, isOps := val.(map[string]any)
		if !isOps {
			if err := checkScalar(field, val); err != nil {
				return nil, err
			}
			conds = append(conds, Condition{Field: field, Op: OpEq, Value: val})
			continue
		}
		if len(ops) == 0 {
			return nil, domain.InvalidArgument("where.%s: empty operator object", field)
		}
		for name, operand := range ops {
			op := Op(name)
			if !knownOps[op] {
				return nil, domain.InvalidArgument("where.%s: unsupported operator %s", field, name)
			}
			if op == OpIn || op == OpNin {
				list, ok := operand.([]any)
				if !ok {
					return nil, domain.InvalidArgument("where.%s: %s expects an array", field, name)
				}
				for _, item := range list {
					if err := checkScalar(field, item); err != nil {
						return nil, err
					}
				}
				conds = append(conds, Condition{Field: field, Op: op, Value: list})
				continue
			}
			if err := checkScalar(field, operand); err != nil {
				return nil, err
			}
			conds = append(conds, Condition{Field: field, Op: op, Value: operand})
		}
	}
	sort.Slice(conds, func(i, j int) bool {
		if conds[i].Field != conds[j].Field {
			return conds[i].Field < conds[j].Field
		}
		return conds[i].Op < conds[j].Op
	})
	return conds, nil
}

func checkScalar(field string, v any) error {
	switch v.(type) {
	case string, bool, json.Number:
		return nil
	case nil:
		return domain.InvalidArgument("where.%s: null is not supported", field)
	default:
		return domain.InvalidArgument("where.%s: expected a string, number or boolean", field)
	}
}

// parseSort keeps key order, which decides sort precedence.
func parseSort(raw string) ([]SortField, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, domain.InvalidArgument("sort must be a JSON object")
	}
	var fields []SortField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, domain.InvalidArgument("sort must be a JSON object")
		}
		key, _ := keyTok.(string)
		valTok, err := dec.Token()
		if err != nil {
			return nil, domain.InvalidArgument("sort.%s: invalid value", key)
		}
		desc, err := sortDirection(key, valTok)
		if err != nil {
			return nil, err
		}
		fields = append(fields, SortField{Field: key, Desc: desc})
	}
	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, domain.InvalidArgument("sort must be a JSON object")
	}
	if dec.More() {
		return nil, domain.InvalidArgument("sort must be a single JSON object")
	}
	return fields, nil
}

func sortDirection(key string, tok json.Token) (bool, error) {
	switch v := tok.(type) {
	case json.Number:
		switch v.String() {
		case "1":
			return false, nil
		case "-1":
			return true, nil
		}
	case string:
		switch strings.ToLower(v) {
		case "asc", "ascending":
			return false, nil
		case "desc", "descending":
			return true, nil
		}
	}
	return false, domain.InvalidArgument("sort.%s must be 1, -1, \"asc\" or \"desc\"", key)
}

// ParseSelect parses a projection document such as {"name":1,"email":1}.
func ParseSelect(raw string) (Projection, error) {
	if strings.TrimSpace(raw) == "" {
		return Projection{}, nil
	}
	obj, err := decodeObject("select", raw)
	if err != nil {
		return Projection{}, err
	}
	var p Projection
	var include, exclude []string
	idOnly := false
	for field, rawVal := range obj {
		val, err := decodeValue(rawVal)
		if err != nil {
			return Projection{}, domain.InvalidArgument("select.%s: %v", field, err)
		}
		on, err := projectionFlag(field, val)
		if err != nil {
			return Projection{}, err
		}
		if canonicalName(field) == "id" {
			p.ExcludeID = !on
			idOnly = on
			continue
		}
		if on {
			include = append(include, field)
		} else {
			exclude = append(exclude, field)
		}
	}
	sort.Strings(include)
	sort.Strings(exclude)
	if len(include) > 0 && len(exclude) > 0 {
		return Projection{}, domain.InvalidArgument("select cannot mix inclusion and exclusion")
	}
	switch {
	case len(exclude) > 0:
		p.Fields, p.Exclude = exclude, true
	case len(include) > 0:
		p.Fields = include
	case idOnly:
		p.Fields = []string{"id"}
	}
	return p, nil
}

func projectionFlag(field string, v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case json.Number:
		switch x.String() {
		case "1":
			return true, nil
		case "0":
			return false, nil
		}
	}
	return false, domain.InvalidArgument("select.%s must be 0, 1, true or false", field)
}

func canonicalName(field string) string {
	if field == "_id" {
		return "id"
	}
	return field
}

// String renders the query for logs.
func (q Query) String() string {
	return fmt.Sprintf("filter=%d sort=%d skip=%d limit=%d(set=%t) count=%t", len(q.Filter), len(q.Sort), q.Skip, q.Limit, q.HasLimit, q.Count)
}
