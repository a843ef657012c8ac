package store

import (
	"fmt"
	"strings"

	jerrors "github.com/p-blackswan/joinery-agent/internal/errors"
)

// Op is a filter comparison.
type Op int

const (
	// OpEq matches column = value.
	OpEq Op = iota
	// OpILike matches a case-insensitive substring of the column.
	OpILike
)

// Cond is one filter term. Terms in a Query are ANDed.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

// Eq builds an equality condition.
func Eq(column string, value any) Cond {
	return Cond{Column: column, Op: OpEq, Value: value}
}

// ILike builds a case-insensitive substring condition.
func ILike(column, substr string) Cond {
	return Cond{Column: column, Op: OpILike, Value: substr}
}

// Query is the generic filter / order / limit primitive shared by the
// entity finders. Zero value selects everything newest first.
type Query struct {
	Where   []Cond
	OrderBy string
	Desc    bool
	Limit   int
}

// Filter appends conditions and returns the query for chaining.
func (q Query) Filter(conds ...Cond) Query {
	q.Where = append(append([]Cond(nil), q.Where...), conds...)
	return q
}

// columns is a set of column names a table accepts in a Query.
type columns map[string]bool

func columnSet(names ...string) columns {
	c := make(columns, len(names))
	for _, n := range names {
		c[n] = true
	}
	return c
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// build renders the WHERE / ORDER BY / LIMIT tail of a SELECT. Column names
// outside allowed are rejected with ErrInvalidInput.
func (q Query) build(allowed columns) (string, []any, error) {
	var (
		b     strings.Builder
		args  []any
		terms []string
	)

	for _, c := range q.Where {
		if !allowed[c.Column] {
			return "", nil, fmt.Errorf("filter column %q: %w", c.Column, jerrors.ErrInvalidInput)
		}
		switch c.Op {
		case OpEq:
			terms = append(terms, c.Column+" = ?")
			args = append(args, c.Value)
		case OpILike:
			terms = append(terms, lowerFunc+"("+c.Column+") LIKE ? ESCAPE '\\'")
			args = append(args, "%"+likeEscaper.Replace(strings.ToLower(fmt.Sprint(c.Value)))+"%")
		default:
			return "", nil, fmt.Errorf("filter op %d: %w", c.Op, jerrors.ErrInvalidInput)
		}
	}
	if len(terms) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(terms, " AND "))
	}

	if q.OrderBy == "" {
		b.WriteString(" ORDER BY created_at DESC, rowid DESC")
	} else {
		if !allowed[q.OrderBy] {
			return "", nil, fmt.Errorf("order column %q: %w", q.OrderBy, jerrors.ErrInvalidInput)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s, rowid %s", q.OrderBy, dir, dir)
	}

	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}
