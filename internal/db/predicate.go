package db

import (
	"strings"

	"github.com/uptrace/bun"
)

// Predicate is one WHERE fragment. Query holds column names and ? placeholders only; every
// caller-supplied value travels in Args.
type Predicate struct {
	Query string
	Args  []interface{}
}

// Predicates is an AND-ed filter list applied to a bun select.
type Predicates []Predicate

func (p *Predicates) Add(query string, args ...interface{}) {
	*p = append(*p, Predicate{Query: query, Args: args})
}

// AnyLike adds a case-insensitive substring match over several columns, OR-ed together.
func (p *Predicates) AnyLike(term string, columns ...string) {
	if term == "" || len(columns) == 0 {
		return
	}
	pattern := "%" + EscapeLike(strings.ToLower(term)) + "%"
	parts := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		parts[i] = "LOWER(" + col + ") LIKE ? ESCAPE '!'"
		args[i] = pattern
	}
	p.Add("("+strings.Join(parts, " OR ")+")", args...)
}

func (p Predicates) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	for _, pr := range p {
		q = q.Where(pr.Query, pr.Args...)
	}
	return q
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// EscapeLike escapes LIKE wildcards with '!' so user input only ever matches literally.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
