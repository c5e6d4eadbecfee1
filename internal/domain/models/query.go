package models

import (
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	domainerrors "github.com/unifiedui/message-warehouse/internal/domain/errors"
)

// Operator is a comparison applied to a metadata field.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// Valid reports whether the operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
		return true
	}
	return false
}

// Condition is a single predicate of a Query.
type Condition struct {
	Field    string      `json:"field" binding:"required"`
	Operator Operator    `json:"op"`
	Value    interface{} `json:"value"`
}

// Validate checks the condition is well formed. An empty operator means eq.
func (c Condition) Validate() error {
	if c.Field == "" {
		return domainerrors.NewValidationError("query field cannot be empty", "")
	}
	op := c.op()
	if !op.Valid() {
		return domainerrors.NewValidationError("unsupported query operator", string(c.Operator))
	}
	if op == OpIn {
		kind := reflect.ValueOf(c.Value).Kind()
		if kind != reflect.Slice && kind != reflect.Array {
			return domainerrors.NewValidationError("'in' requires a list value", c.Field)
		}
	}
	if _, err := generatedValue(c.Field, c.Value); err != nil {
		return err
	}
	return nil
}

// generatedValue converts the string forms clients send for _id (hex) and
// creation_time (RFC 3339) into the stored BSON types. Lists are converted
// element by element; other fields and values are returned unchanged.
func generatedValue(field string, value interface{}) (interface{}, error) {
	if field != FieldID && field != FieldCreationTime {
		return value, nil
	}

	switch v := value.(type) {
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			converted, err := generatedValue(field, item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case string:
		if field == FieldID {
			id, err := primitive.ObjectIDFromHex(v)
			if err != nil {
				return nil, domainerrors.NewValidationError("_id must be a 24 digit hex string", v)
			}
			return id, nil
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, domainerrors.NewValidationError("creation_time must be an RFC 3339 timestamp", v)
		}
		return t.UTC(), nil
	}
	return value, nil
}

func (c Condition) op() Operator {
	if c.Operator == "" {
		return OpEq
	}
	return c.Operator
}

// Query is a conjunction of predicates over metadata fields.
// A nil or empty Query matches every record.
type Query struct {
	conditions []Condition
}

// NewQuery creates an empty query.
func NewQuery(conditions ...Condition) *Query {
	return &Query{conditions: append([]Condition(nil), conditions...)}
}

// Where adds a predicate.
func (q *Query) Where(field string, op Operator, value interface{}) *Query {
	q.conditions = append(q.conditions, Condition{Field: field, Operator: op, Value: value})
	return q
}

// Eq matches records whose field equals value.
func (q *Query) Eq(field string, value interface{}) *Query { return q.Where(field, OpEq, value) }

// Ne matches records whose field differs from value.
func (q *Query) Ne(field string, value interface{}) *Query { return q.Where(field, OpNe, value) }

// Gt matches records whose field is greater than value.
func (q *Query) Gt(field string, value interface{}) *Query { return q.Where(field, OpGt, value) }

// Gte matches records whose field is greater than or equal to value.
func (q *Query) Gte(field string, value interface{}) *Query { return q.Where(field, OpGte, value) }

// Lt matches records whose field is less than value.
func (q *Query) Lt(field string, value interface{}) *Query { return q.Where(field, OpLt, value) }

// Lte matches records whose field is less than or equal to value.
func (q *Query) Lte(field string, value interface{}) *Query { return q.Where(field, OpLte, value) }

// In matches records whose field equals one of values.
func (q *Query) In(field string, values ...interface{}) *Query {
	return q.Where(field, OpIn, values)
}

// Conditions returns a copy of the predicates.
func (q *Query) Conditions() []Condition {
	if q == nil {
		return nil
	}
	return append([]Condition(nil), q.conditions...)
}

// Validate checks every predicate.
func (q *Query) Validate() error {
	if q == nil {
		return nil
	}
	for _, c := range q.conditions {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Filter renders the query as a MongoDB filter. Predicates on the same
// field are merged into one operator document, in first-seen field order.
func (q *Query) Filter() bson.D {
	filter := bson.D{}
	if q == nil {
		return filter
	}

	index := make(map[string]int)
	for _, c := range q.conditions {
		value, err := generatedValue(c.Field, c.Value)
		if err != nil {
			value = c.Value
		}
		e := bson.E{Key: "$" + string(c.op()), Value: value}
		if i, ok := index[c.Field]; ok {
			ops := filter[i].Value.(bson.D)
			filter[i].Value = append(ops, e)
			continue
		}
		index[c.Field] = len(filter)
		filter = append(filter, bson.E{Key: c.Field, Value: bson.D{e}})
	}
	return filter
}

// String renders the query for logs.
func (q *Query) String() string {
	return fmt.Sprintf("%v", q.Filter())
}

// SortOrder represents the sort direction.
type SortOrder string

const (
	// SortOrderAsc represents ascending order.
	SortOrderAsc SortOrder = "asc"
	// SortOrderDesc represents descending order.
	SortOrderDesc SortOrder = "desc"
)

// QueryOptions contains options for retrieving messages.
type QueryOptions struct {
	// MetadataOnly skips loading payloads; results carry empty messages.
	MetadataOnly bool
	// SortBy names the field to sort on. Empty leaves the order to the server.
	SortBy string
	// Order defaults to ascending.
	Order SortOrder
	// Limit caps the number of results when positive.
	Limit int64
}

// Validate checks the sort order.
func (o *QueryOptions) Validate() error {
	if o == nil {
		return nil
	}
	switch o.Order {
	case "", SortOrderAsc, SortOrderDesc:
	default:
		return domainerrors.NewValidationError("unsupported sort order", string(o.Order))
	}
	if o.Limit < 0 {
		return domainerrors.NewValidationError("limit cannot be negative", fmt.Sprint(o.Limit))
	}
	return nil
}

// SortDocument returns the MongoDB sort specification, or nil when unsorted.
func (o *QueryOptions) SortDocument() bson.D {
	if o == nil || o.SortBy == "" {
		return nil
	}
	direction := 1
	if o.Order == SortOrderDesc {
		direction = -1
	}
	return bson.D{{Key: o.SortBy, Value: direction}}
}
