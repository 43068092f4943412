package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhere(t *testing.T) {
	tests := []struct {
		name       string
		pred       Predicate
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "by id",
			pred:       ByID(7),
			wantClause: "id = $1",
			wantArgs:   []any{int64(7)},
		},
		{
			name:       "username or email",
			pred:       Any(ByUsername("alice"), ByEmail("a@x.com")),
			wantClause: "(username = $1 OR email = $2)",
			wantArgs:   []any{"alice", "a@x.com"},
		},
		{
			name:       "collision excluding self",
			pred:       All(Any(ByUsername("alice"), ByEmail("a@x.com")), NotID(1)),
			wantClause: "((username = $1 OR email = $2) AND id <> $3)",
			wantArgs:   []any{"alice", "a@x.com", int64(1)},
		},
		{
			name:       "everything",
			pred:       Everything(),
			wantClause: "TRUE",
		},
		{
			name:       "nil predicate",
			pred:       nil,
			wantClause: "TRUE",
		},
		{
			name:       "empty any",
			pred:       Any(),
			wantClause: "FALSE",
		},
		{
			name:       "empty all",
			pred:       All(),
			wantClause: "TRUE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := Where(tt.pred)
			assert.Equal(t, tt.wantClause, clause)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
