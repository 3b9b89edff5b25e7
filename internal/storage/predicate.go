package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

// Op is a comparison operator usable in a predicate
type Op string

const (
	OpEq Op = "="
	OpNe Op = "<>"
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Expr is a node of a typed boolean predicate over dag_info columns.
// Predicates are rendered to parameterised SQL by the SQL-backed stores and
// evaluated directly by the memory store, so both agree on semantics
type Expr interface {
	isExpr()
}

// Cmp compares a column with a value
type Cmp struct {
	Field string
	Op    Op
	Value interface{}
}

// And is true when every child is true. An empty And is true
type And []Expr

// Or is true when any child is true. An empty Or is false
type Or []Expr

// True matches every record
type True struct{}

func (Cmp) isExpr()  {}
func (And) isExpr()  {}
func (Or) isExpr()   {}
func (True) isExpr() {}

func Eq(field string, v interface{}) Cmp { return Cmp{Field: field, Op: OpEq, Value: v} }
func Ne(field string, v interface{}) Cmp { return Cmp{Field: field, Op: OpNe, Value: v} }
func Lt(field string, v interface{}) Cmp { return Cmp{Field: field, Op: OpLt, Value: v} }
func Le(field string, v interface{}) Cmp { return Cmp{Field: field, Op: OpLe, Value: v} }
func Gt(field string, v interface{}) Cmp { return Cmp{Field: field, Op: OpGt, Value: v} }
func Ge(field string, v interface{}) Cmp { return Cmp{Field: field, Op: OpGe, Value: v} }

// Match builds the conjunction of equality tests for every entry of v
func Match(v Values) Expr {
	keys := v.Keys()
	if len(keys) != len(v) {
		// Unknown keys are kept so validation reports them
		for name := range v {
			if !IsColumn(name) {
				keys = append(keys, name)
			}
		}
	}
	and := make(And, 0, len(keys))
	for _, name := range keys {
		and = append(and, Eq(name, v[name]))
	}
	return and
}

// Validate checks every comparison names a known column and a known operator
func Validate(e Expr) error {
	switch x := e.(type) {
	case nil:
		return fmt.Errorf("%w: nil predicate", ErrInvalidInput)
	case True:
		return nil
	case Cmp:
		if err := CheckColumns(x.Field); err != nil {
			return err
		}
		switch x.Op {
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
			return nil
		}
		return fmt.Errorf("%w: operator %q", ErrInvalidInput, x.Op)
	case And:
		for _, c := range x {
			if err := Validate(c); err != nil {
				return err
			}
		}
		return nil
	case Or:
		for _, c := range x {
			if err := Validate(c); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: predicate type %T", ErrInvalidInput, e)
}

// Render translates e into a SQL boolean clause with bind arguments
func Render(e Expr, d Dialect) (string, []interface{}, error) {
	if err := Validate(e); err != nil {
		return "", nil, err
	}
	r := &renderer{dialect: d}
	var b strings.Builder
	r.write(&b, e)
	return b.String(), r.args, nil
}

type renderer struct {
	dialect Dialect
	args    []interface{}
}

func (r *renderer) write(b *strings.Builder, e Expr) {
	switch x := e.(type) {
	case True:
		b.WriteString("1=1")
	case Cmp:
		r.args = append(r.args, r.dialect.BindValue(normalizeValue(x.Value)))
		fmt.Fprintf(b, "%s %s %s", r.dialect.Quote(x.Field), x.Op, r.dialect.Placeholder(len(r.args)))
	case And:
		r.join(b, []Expr(x), " AND ", "1=1")
	case Or:
		r.join(b, []Expr(x), " OR ", "1=0")
	}
}

func (r *renderer) join(b *strings.Builder, children []Expr, sep, empty string) {
	if len(children) == 0 {
		b.WriteString(empty)
		return
	}
	b.WriteString("(")
	for i, c := range children {
		if i > 0 {
			b.WriteString(sep)
		}
		r.write(b, c)
	}
	b.WriteString(")")
}

// Eval evaluates e against a record in memory
func Eval(e Expr, d *models.DagInfo) (bool, error) {
	switch x := e.(type) {
	case True:
		return true, nil
	case Cmp:
		left, err := ValueOf(d, x.Field)
		if err != nil {
			return false, err
		}
		return compare(left, x.Op, normalizeValue(x.Value))
	case And:
		for _, c := range x {
			ok, err := Eval(c, d)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, c := range x {
			ok, err := Eval(c, d)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("%w: predicate type %T", ErrInvalidInput, e)
}

func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case models.DagStatus:
		return string(x.Normalize())
	case int:
		return int64(x)
	case int32:
		return int64(x)
	}
	return v
}

func compare(left interface{}, op Op, right interface{}) (bool, error) {
	switch l := left.(type) {
	case time.Time:
		r, err := toTime(right)
		if err != nil {
			return false, err
		}
		return ordered(cmpTime(models.TruncateTime(l), models.TruncateTime(r)), op), nil
	case int64:
		r, err := toInt64(right)
		if err != nil {
			return false, err
		}
		return ordered(cmpInt(l, r), op), nil
	case models.DagStatus:
		r, err := toString(right)
		if err != nil {
			return false, err
		}
		return ordered(strings.Compare(string(l.Normalize()), string(models.DagStatus(r).Normalize())), op), nil
	case string:
		r, err := toString(right)
		if err != nil {
			return false, err
		}
		return ordered(strings.Compare(l, r), op), nil
	case bool:
		r, err := toBool(right)
		if err != nil {
			return false, err
		}
		return ordered(cmpInt(boolInt(l), boolInt(r)), op), nil
	}
	return false, fmt.Errorf("%w: cannot compare %T", ErrInvalidInput, left)
}

func ordered(c int, op Op) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
