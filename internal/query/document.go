package query

import "encoding/json"

// Document is a record rendered as a field map, after projection.
type Document map[string]any

// Result is what a list operation returns: a cardinality for count-only
// queries, the matching documents otherwise.
type Result struct {
	CountOnly bool
	Count     int
	Items     []Document
}

// Apply returns a copy of doc restricted by the projection.
func (p Projection) Apply(doc Document) Document {
	if p.IsZero() {
		return doc
	}
	out := Document{}
	if p.Exclude || len(p.Fields) == 0 {
		for k, v := range doc {
			out[k] = v
		}
		for _, f := range p.Fields {
			delete(out, f)
		}
	} else {
		if v, ok := doc["id"]; ok {
			out["id"] = v
		}
		for _, f := range p.Fields {
			if v, ok := doc[f]; ok {
				out[f] = v
			}
		}
	}
	if p.ExcludeID {
		delete(out, "id")
	}
	return out
}

// Project renders v as a document and applies p.
func Project(v any, p Projection) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return p.Apply(doc), nil
}
