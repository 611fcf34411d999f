package docstore

type Direction string

const (
	Ascending  Direction = "ASCENDING"
	Descending Direction = "DESCENDING"
)

type CollectionSelector struct {
	CollectionID string `json:"collectionId"`
}

type FieldReference struct {
	FieldPath string `json:"fieldPath"`
}

type FieldFilter struct {
	Field FieldReference `json:"field"`
	Op    string         `json:"op"`
	Value Value          `json:"value"`
}

type Filter struct {
	FieldFilter *FieldFilter `json:"fieldFilter,omitempty"`
}

type Order struct {
	Field     FieldReference `json:"field"`
	Direction Direction      `json:"direction"`
}

// StructuredQuery supports a single collection, an optional equality
// filter, optional ordering and a limit.
type StructuredQuery struct {
	From    []CollectionSelector `json:"from"`
	Where   *Filter              `json:"where,omitempty"`
	OrderBy []Order              `json:"orderBy,omitempty"`
	Limit   int                  `json:"limit,omitempty"`
}

func From(collection string) StructuredQuery {
	return StructuredQuery{From: []CollectionSelector{{CollectionID: collection}}}
}

// WhereEqual adds an equality filter on field.
func (q StructuredQuery) WhereEqual(field string, v Value) StructuredQuery {
	q.Where = &Filter{FieldFilter: &FieldFilter{
		Field: FieldReference{FieldPath: field},
		Op:    "EQUAL",
		Value: v,
	}}
	return q
}

func (q StructuredQuery) OrderByField(field string, dir Direction) StructuredQuery {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Field: FieldReference{FieldPath: field}, Direction: dir})
	return q
}

func (q StructuredQuery) WithLimit(n int) StructuredQuery {
	q.Limit = n
	return q
}

// Unordered drops server-side ordering, for stores without a matching index.
func (q StructuredQuery) Unordered() StructuredQuery {
	q.OrderBy = nil
	return q
}

func (q StructuredQuery) collection() string {
	if len(q.From) == 0 {
		return ""
	}
	return q.From[0].CollectionID
}
