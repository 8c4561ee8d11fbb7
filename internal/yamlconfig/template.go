package yamlconfig

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// toHCLTemplate rewrites `${{ expr }}` interpolations into HCL `${expr}` and
// escapes every other HCL template sequence so that shell syntax such as
// ${HOME} reaches the command untouched.
func toHCLTemplate(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch {
		case strings.HasPrefix(s[i:], "${{"):
			end := strings.Index(s[i+3:], "}}")
			if end < 0 {
				return "", fmt.Errorf("unterminated ${{ in %q", s)
			}
			expr := strings.TrimSpace(s[i+3 : i+3+end])
			if expr == "" {
				return "", fmt.Errorf("empty ${{ }} in %q", s)
			}
			b.WriteString("${")
			b.WriteString(expr)
			b.WriteString("}")
			i += 3 + end + 1
		case strings.HasPrefix(s[i:], "${"):
			b.WriteString("$${")
			i++
		case strings.HasPrefix(s[i:], "%{"):
			b.WriteString("%%{")
			i++
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String(), nil
}

// parseRun turns a YAML run string into a template expression.
func parseRun(filename, run string) (hcl.Expression, error) {
	tmpl, err := toHCLTemplate(run)
	if err != nil {
		return nil, err
	}
	expr, diags := hclsyntax.ParseTemplate([]byte(tmpl), filename, hcl.InitialPos)
	if diags.HasErrors() {
		return nil, diags
	}
	return expr, nil
}
