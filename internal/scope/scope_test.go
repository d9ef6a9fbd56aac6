package scope

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope_MatchesEquivalentToSQL(t *testing.T) {
	s := Scope{Include: []string{"src/"}, Exclude: []string{"*.test.*"}}
	paths := []string{"src/a.ts", "src/a.test.ts", "lib/b.ts"}

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	clause := s.ToSQL("path")
	query := "SELECT 1 WHERE " + clause.SQL
	args := make([]any, len(clause.Args))
	for i, a := range clause.Args {
		args[i] = a
	}

	for _, p := range paths {
		goResult := s.Matches(p)

		row := db.QueryRow("SELECT 1 WHERE "+clauseWithLiteralPath(clause.SQL, p), args...)
		var one int
		sqlErr := row.Scan(&one)
		sqlResult := sqlErr == nil

		assert.Equal(t, goResult, sqlResult, "mismatch for path %q", p)
		_ = query
	}
}

// clauseWithLiteralPath substitutes the bound column reference so the same
// clause can run standalone per literal path value in the test above.
func clauseWithLiteralPath(clauseSQL, literal string) string {
	return substituteColumn(clauseSQL, literal)
}

func substituteColumn(clauseSQL, literal string) string {
	// Replace the bare "path" column reference with a quoted literal.
	out := ""
	for i := 0; i < len(clauseSQL); {
		if i+4 <= len(clauseSQL) && clauseSQL[i:i+4] == "path" {
			out += "'" + escapeSQLLiteral(literal) + "'"
			i += 4
			continue
		}
		out += string(clauseSQL[i])
		i++
	}
	return out
}

func escapeSQLLiteral(s string) string {
	out := ""
	for _, r := range s {
		if r == '\'' {
			out += "''"
		} else {
			out += string(r)
		}
	}
	return out
}

func TestScope_Empty_MatchesEverything(t *testing.T) {
	var s Scope
	assert.True(t, s.Matches("anything/at/all.go"))
}

func TestScope_Merge_AllClearsEverything(t *testing.T) {
	cfg := Scope{Include: []string{"src/"}, Exclude: []string{"*.test.*"}}
	merged := Merge(cfg, []string{"lib/"}, []string{"*.gen.go"}, true)
	assert.True(t, merged.IsEmpty())
}

func TestScope_Merge_CLIIncludeReplacesExcludeAppends(t *testing.T) {
	cfg := Scope{Include: []string{"src/"}, Exclude: []string{"*.test.*"}}
	merged := Merge(cfg, []string{"lib/"}, []string{"*.gen.go"}, false)
	assert.Equal(t, []string{"lib/"}, merged.Include)
	assert.ElementsMatch(t, []string{"*.test.*", "*.gen.go"}, merged.Exclude)
}

func TestScope_Normalize_StripsLeadingSlashAndDots(t *testing.T) {
	out := Normalize([]string{"./src/a.go", "/src/b.go", "src/a.go"})
	assert.ElementsMatch(t, []string{"src/a.go", "src/b.go"}, out)
}
