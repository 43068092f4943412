package repositories

import (
	"strconv"
	"strings"
)

// Predicate selects users. Predicates compose with Any and All and are
// rendered to a parameterized WHERE clause.
type Predicate interface {
	render(b *binder) string
}

type binder struct {
	args []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

type comparison struct {
	column string
	op     string
	value  any
}

func (c comparison) render(b *binder) string {
	return c.column + " " + c.op + " " + b.bind(c.value)
}

type junction struct {
	op    string
	preds []Predicate
}

func (j junction) render(b *binder) string {
	if len(j.preds) == 0 {
		if j.op == "OR" {
			return "FALSE"
		}
		return "TRUE"
	}
	parts := make([]string, 0, len(j.preds))
	for _, p := range j.preds {
		parts = append(parts, p.render(b))
	}
	return "(" + strings.Join(parts, " "+j.op+" ") + ")"
}

type everything struct{}

func (everything) render(*binder) string { return "TRUE" }

// ByID matches the user with the given id.
func ByID(id int64) Predicate { return comparison{column: "id", op: "=", value: id} }

// ByUsername matches the user with the given username.
func ByUsername(username string) Predicate {
	return comparison{column: "username", op: "=", value: username}
}

// ByEmail matches the user with the given email.
func ByEmail(email string) Predicate { return comparison{column: "email", op: "=", value: email} }

// NotID excludes the user with the given id.
func NotID(id int64) Predicate { return comparison{column: "id", op: "<>", value: id} }

// Any matches when at least one of preds matches. Any() matches nothing.
func Any(preds ...Predicate) Predicate { return junction{op: "OR", preds: preds} }

// All matches when every one of preds matches. All() matches everything.
func All(preds ...Predicate) Predicate { return junction{op: "AND", preds: preds} }

// Everything matches every user.
func Everything() Predicate { return everything{} }

// Where renders p into a WHERE clause body and its positional arguments.
func Where(p Predicate) (string, []any) {
	if p == nil {
		p = Everything()
	}
	b := &binder{}
	clause := p.render(b)
	return clause, b.args
}
