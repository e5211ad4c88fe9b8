package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskroster/internal/domain"
)

var testSchema = Schema{
	Entity: "user",
	Table:  "users",
	Fields: map[string]Field{
		"id":           {Column: "id"},
		"name":         {Column: "name"},
		"active":       {Column: "active", Kind: Bool},
		"dateCreated":  {Column: "date_created", Kind: Time},
		"pendingTasks": {Column: "id", Kind: Set, Set: &SetRelation{Table: "pending_tasks", OwnerColumn: "user_id", ValueColumn: "task_id"}},
	},
}

func TestParseRejectsMalformedInput(t *testing.T) {
	cases := map[string]Params{
		"where not json":      {Where: "{name:"},
		"where array":         {Where: `["a"]`},
		"where null value":    {Where: `{"name":null}`},
		"where unknown op":    {Where: `{"name":{"$regex":"a"}}`},
		"where $in not array": {Where: `{"name":{"$in":"a"}}`},
		"where nested object": {Where: `{"name":{"first":"a"}}`},
		"sort not object":     {Sort: `"name"`},
		"sort bad direction":  {Sort: `{"name":2}`},
		"select mixed":        {Select: `{"name":1,"email":0}`},
		"select bad flag":     {Select: `{"name":"yes"}`},
		"negative skip":       {Skip: "-1"},
		"limit not int":       {Limit: "ten"},
		"count not bool":      {Count: "maybe"},
	}
	for name, p := range cases {
		_, err := Parse(p)
		require.Error(t, err, name)
		assert.True(t, domain.IsKind(err, domain.KindInvalidArgument), "%s: %v", name, err)
	}
}

func TestParseKeepsSortOrder(t *testing.T) {
	q, err := Parse(Params{Sort: `{"name":-1,"dateCreated":"asc","id":1}`})
	require.NoError(t, err)
	assert.Equal(t, []SortField{{Field: "name", Desc: true}, {Field: "dateCreated"}, {Field: "id"}}, q.Sort)
}

func TestParseLimitPresence(t *testing.T) {
	q, err := Parse(Params{})
	require.NoError(t, err)
	assert.False(t, q.HasLimit)

	q, err = Parse(Params{Limit: "0", Skip: "5", Count: "true"})
	require.NoError(t, err)
	assert.True(t, q.HasLimit)
	assert.Equal(t, 0, q.Limit)
	assert.Equal(t, 5, q.Skip)
	assert.True(t, q.Count)
}

func TestCompileFilterAndSort(t *testing.T) {
	q, err := Parse(Params{
		Where: `{"name":{"$in":["a","b"]},"active":true,"dateCreated":{"$gte":"2024-01-02"}}`,
		Sort:  `{"name":1}`,
		Limit: "10",
		Skip:  "20",
	})
	require.NoError(t, err)
	st, err := Compile(q, testSchema)
	require.NoError(t, err)
	assert.Equal(t, "users.active = ? AND users.date_created >= ? AND users.name IN (?,?)", st.Where)
	assert.Equal(t, []any{1, "2024-01-02T00:00:00.000Z", "a", "b"}, st.Args)
	assert.Equal(t, "users.name ASC, users.rowid ASC", st.OrderBy)

	tail, args := st.Tail()
	assert.Equal(t, " WHERE users.active = ? AND users.date_created >= ? AND users.name IN (?,?) ORDER BY users.name ASC, users.rowid ASC LIMIT ? OFFSET ?", tail)
	assert.Equal(t, []any{1, "2024-01-02T00:00:00.000Z", "a", "b", 10, 20}, args)
}

func TestCompileSetMembership(t *testing.T) {
	q, err := Parse(Params{Where: `{"pendingTasks":"t1"}`})
	require.NoError(t, err)
	st, err := Compile(q, testSchema)
	require.NoError(t, err)
	assert.Equal(t, "EXISTS (SELECT 1 FROM pending_tasks s WHERE s.user_id = users.id AND s.task_id IN (?))", st.Where)
	assert.Equal(t, []any{"t1"}, st.Args)

	q, err = Parse(Params{Where: `{"pendingTasks":{"$gt":"t1"}}`})
	require.NoError(t, err)
	_, err = Compile(q, testSchema)
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	q, err = Parse(Params{Sort: `{"pendingTasks":1}`})
	require.NoError(t, err)
	_, err = Compile(q, testSchema)
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))
}

func TestCompileRejectsUnknownFieldsAndTypes(t *testing.T) {
	for _, p := range []Params{
		{Where: `{"nope":"x"}`},
		{Where: `{"active":"yes"}`},
		{Where: `{"name":3}`},
		{Where: `{"dateCreated":"yesterday"}`},
		{Sort: `{"nope":1}`},
		{Select: `{"nope":1}`},
	} {
		q, err := Parse(p)
		require.NoError(t, err)
		_, err = Compile(q, testSchema)
		assert.True(t, domain.IsKind(err, domain.KindInvalidArgument), "%+v: %v", p, err)
	}
}

func TestCompileCountDropsPaging(t *testing.T) {
	q, err := Parse(Params{Where: `{"_id":"u1"}`, Sort: `{"nope":1}`, Limit: "3", Count: "true"})
	require.NoError(t, err)
	st, err := Compile(q, testSchema)
	require.NoError(t, err)
	tail, args := st.Tail()
	assert.Equal(t, " WHERE users.id = ?", tail)
	assert.Equal(t, []any{"u1"}, args)
}

func TestSkipWithoutLimit(t *testing.T) {
	st := Statement{OrderBy: "users.rowid ASC", Offset: 4}
	tail, args := st.Tail()
	assert.Equal(t, " ORDER BY users.rowid ASC LIMIT -1 OFFSET ?", tail)
	assert.Equal(t, []any{4}, args)
}

func TestProjectionApply(t *testing.T) {
	doc := Document{"id": "u1", "name": "Ada", "email": "ada@example.com"}

	p, err := ParseSelect(`{"name":1}`)
	require.NoError(t, err)
	assert.Equal(t, Document{"id": "u1", "name": "Ada"}, p.Apply(doc))

	p, err = ParseSelect(`{"name":1,"_id":0}`)
	require.NoError(t, err)
	assert.Equal(t, Document{"name": "Ada"}, p.Apply(doc))

	p, err = ParseSelect(`{"email":0}`)
	require.NoError(t, err)
	assert.Equal(t, Document{"id": "u1", "name": "Ada"}, p.Apply(doc))

	assert.Equal(t, doc, Projection{}.Apply(doc))

	for _, sel := range []string{`{"_id":1}`, `{"id":true}`} {
		p, err = ParseSelect(sel)
		require.NoError(t, err)
		assert.Equal(t, Document{"id": "u1"}, p.Apply(doc), sel)
	}
}
