package m1

import "fmt"

// ConnOp is the operator joining WHERE conditions.
type ConnOp int

// Condition connectors, in head output order.
const (
	ConnNone ConnOp = iota
	ConnAnd
	ConnOr
)

// NumConnOps is the width of the connector head.
const NumConnOps = 3

var connOpNames = [NumConnOps]string{"none", "AND", "OR"}

func (c ConnOp) String() string {
	if c < 0 || int(c) >= NumConnOps {
		return fmt.Sprintf("ConnOp(%d)", int(c))
	}
	return connOpNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c ConnOp) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Agg is the aggregation applied to a column, or Excluded when the column
// is not selected.
type Agg int

// Aggregations, in head output order.
const (
	AggNone Agg = iota
	AggAvg
	AggMax
	AggMin
	AggCount
	AggSum
	AggExcluded
)

// NumAggs is the width of the aggregation head.
const NumAggs = 7

var aggNames = [NumAggs]string{"none", "AVG", "MAX", "MIN", "COUNT", "SUM", "excluded"}

func (a Agg) String() string {
	if a < 0 || int(a) >= NumAggs {
		return fmt.Sprintf("Agg(%d)", int(a))
	}
	return aggNames[a]
}

// MarshalText implements encoding.TextMarshaler.
func (a Agg) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Selected reports whether the column appears in the SELECT list.
func (a Agg) Selected() bool {
	return a != AggExcluded
}

// CondOp is the comparison applied to a column in a WHERE condition, or
// CondNone when the column has no condition.
type CondOp int

// Comparison operators, in head output order.
const (
	CondGt CondOp = iota
	CondLt
	CondEq
	CondNe
	CondNone
)

// NumCondOps is the width of the comparison head.
const NumCondOps = 5

var condOpNames = [NumCondOps]string{">", "<", "=", "!=", "none"}

func (o CondOp) String() string {
	if o < 0 || int(o) >= NumCondOps {
		return fmt.Sprintf("CondOp(%d)", int(o))
	}
	return condOpNames[o]
}

// MarshalText implements encoding.TextMarshaler.
func (o CondOp) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// HasCondition reports whether the column is constrained.
func (o CondOp) HasCondition() bool {
	return o != CondNone
}
