package scope

import "strings"

// escapeLike escapes literal '%' and '_' (SQL LIKE's own wildcards) so they
// are treated as literal characters rather than pattern metacharacters,
// matching spec.md §4.11's "LIKE ... ESCAPE '\'" contract.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// likePattern converts one scope pattern into a SQL LIKE pattern with the
// same semantics as matchOne: a plain pattern becomes a prefix match
// ("pattern%"), a pattern containing '*' has '*' converted to '%' after the
// rest of the pattern is escaped.
func likePattern(pattern string) string {
	if !strings.Contains(pattern, "*") {
		return escapeLike(pattern) + "%"
	}
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = escapeLike(part)
	}
	return strings.Join(parts, "%")
}

// SQLClause is a parameterized boolean expression plus its bind arguments,
// ready to be appended to a WHERE clause with "AND ( ... )".
type SQLClause struct {
	SQL  string
	Args []any
}

// ToSQL builds the SQL-side equivalent of Matches for the given column
// name: "<col> LIKE ? ESCAPE '\' [OR ...]" for includes, ANDed with
// "<col> NOT LIKE ? ESCAPE '\'" for each exclude.
func (s Scope) ToSQL(column string) SQLClause {
	var clauses []string
	var args []any

	if len(s.Include) > 0 {
		var ors []string
		for _, p := range s.Include {
			ors = append(ors, column+` LIKE ? ESCAPE '\'`)
			args = append(args, likePattern(p))
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	for _, p := range s.Exclude {
		clauses = append(clauses, column+` NOT LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(p))
	}

	if len(clauses) == 0 {
		return SQLClause{SQL: "1=1"}
	}
	return SQLClause{SQL: strings.Join(clauses, " AND "), Args: args}
}

// Merge applies spec.md §4.11's config/CLI precedence rules:
//   - all=true clears both include and exclude (match everything)
//   - a non-empty CLI include replaces the config include
//   - CLI excludes append to config excludes
//   - the final lists are deduplicated (via Normalize)
func Merge(configScope Scope, cliInclude, cliExclude []string, all bool) Scope {
	if all {
		return Scope{}
	}

	include := configScope.Include
	if len(cliInclude) > 0 {
		include = cliInclude
	}

	exclude := append(append([]string{}, configScope.Exclude...), cliExclude...)

	return Scope{
		Include: Normalize(include),
		Exclude: Normalize(exclude),
	}
}
