package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Parse reads the compact textual guard form used by YAML declarations, e.g.
//
//	container contains 'ubuntu' && arch == aarch64
//	container contains ubuntu || container contains debian
//
// Clauses are joined with either && or ||, not both. Literals may be bare
// words or single/double quoted; quoted literals keep their spacing and may
// contain && or ||.
func Parse(expr string) (Guard, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Guard{}, nil
	}
	clauses, sep, err := splitClauses(expr)
	if err != nil {
		return Guard{}, err
	}

	var preds []Predicate
	for _, clause := range clauses {
		p, err := parseClause(clause)
		if err != nil {
			return Guard{}, err
		}
		preds = append(preds, p)
	}
	if sep == "||" {
		return Guard{Any: preds}, nil
	}
	return Guard{All: preds}, nil
}

// splitClauses cuts expr at && or || outside quoted literals and returns the
// separator used.
func splitClauses(expr string) ([]string, string, error) {
	var (
		clauses []string
		sep     string
		quote   byte
		start   int
	)
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case (c == '\'' || c == '"') && (i == 0 || unicode.IsSpace(rune(expr[i-1]))):
			quote = c
		case i+1 < len(expr) && (expr[i:i+2] == "&&" || expr[i:i+2] == "||"):
			op := expr[i : i+2]
			if sep != "" && sep != op {
				return nil, "", fmt.Errorf("%w: cannot mix && and || in %q", ErrMalformed, expr)
			}
			sep = op
			clauses = append(clauses, expr[start:i])
			i++
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, "", fmt.Errorf("%w: unterminated quote in %q", ErrMalformed, expr)
	}
	return append(clauses, expr[start:]), sep, nil
}

func parseClause(clause string) (Predicate, error) {
	field, rest := cutWord(strings.TrimSpace(clause))
	opWord, rest := cutWord(rest)
	literal := strings.TrimSpace(rest)
	if field == "" || opWord == "" || literal == "" {
		return Predicate{}, fmt.Errorf("%w: expected '<field> <op> <value>', got %q", ErrMalformed, clause)
	}
	op, err := ParseOp(opWord)
	if err != nil {
		return Predicate{}, err
	}
	switch literal[0] {
	case '\'':
		n := len(literal)
		if n < 2 || literal[n-1] != '\'' || strings.ContainsRune(literal[1:n-1], '\'') {
			return Predicate{}, fmt.Errorf("%w: bad quoted literal %s", ErrMalformed, literal)
		}
		literal = literal[1 : n-1]
	case '"':
		unquoted, err := strconv.Unquote(literal)
		if err != nil {
			return Predicate{}, fmt.Errorf("%w: bad quoted literal %s: %v", ErrMalformed, literal, err)
		}
		literal = unquoted
	}
	return Predicate{Field: field, Op: op, Value: literal}, nil
}

// cutWord splits s at its first run of whitespace.
func cutWord(s string) (word, rest string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}
