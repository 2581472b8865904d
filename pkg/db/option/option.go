package option

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption mutates a query before it is executed.
type QueryOption func(*gorm.DB) *gorm.DB

// Apply runs opts over db in order.
func Apply(db *gorm.DB, opts ...QueryOption) *gorm.DB {
	for _, opt := range opts {
		if opt != nil {
			db = opt(db)
		}
	}
	return db
}

// LockingUpdate is a gorm scope adding SELECT ... FOR UPDATE. The sqlite
// dialector drops the clause, which is fine for its single writer.
func LockingUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func WithLockingUpdate() QueryOption {
	return LockingUpdate
}

type QuerySortBy struct {
	SortBy  string
	OrderBy string
	Allow   map[string]bool
}

const defaultSortColumn = "created_at"

// WithSortBy orders by SortBy when it is allowed, otherwise by created_at.
func WithSortBy(s QuerySortBy) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := s.SortBy
		if column == "" || (s.Allow != nil && !s.Allow[column]) {
			column = defaultSortColumn
		}
		desc := strings.EqualFold(s.OrderBy, "desc")
		return db.Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc})
	}
}

func WithLimit(limit int) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	}
}

type Operator string

const (
	EQ  Operator = "="
	NEQ Operator = "<>"
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
	IN  Operator = "IN"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator adds a single column comparison. Column names are quoted by gorm.
func ApplyOperator(c Condition) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		column := clause.Column{Name: c.Field}
		var expr clause.Expression
		switch c.Operator {
		case NEQ:
			expr = clause.Neq{Column: column, Value: c.Value}
		case GT:
			expr = clause.Gt{Column: column, Value: c.Value}
		case GTE:
			expr = clause.Gte{Column: column, Value: c.Value}
		case LT:
			expr = clause.Lt{Column: column, Value: c.Value}
		case LTE:
			expr = clause.Lte{Column: column, Value: c.Value}
		case IN:
			values, ok := c.Value.([]any)
			if !ok {
				values = []any{c.Value}
			}
			expr = clause.IN{Column: column, Values: values}
		default:
			expr = clause.Eq{Column: column, Value: c.Value}
		}
		return db.Clauses(clause.Where{Exprs: []clause.Expression{expr}})
	}
}
