package db

import (
	"strconv"
	"strings"
)

// Filter accumulates WHERE conditions with positional placeholders.
type Filter struct {
	conds []string
	args  []any
}

// Add appends cond, replacing each '?' with the next positional parameter.
// The same arg is bound once and reused for every '?' in cond.
func (f *Filter) Add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(f.args))))
}

// Where renders the WHERE clause, or an empty string without conditions.
func (f *Filter) Where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// Args returns the bound arguments.
func (f *Filter) Args() []any {
	return f.args
}

// Page renders LIMIT/OFFSET placeholders and returns the arguments including them.
func (f *Filter) Page(limit, offset int) (string, []any) {
	n := len(f.args)
	clause := " LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	args := append(append([]any{}, f.args...), limit, offset)
	return clause, args
}
