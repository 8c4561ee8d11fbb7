package step

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/matrixgrid/internal/environment"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions are available to command templates.
var functions = map[string]function.Function{
	"upper":     stdlib.UpperFunc,
	"lower":     stdlib.LowerFunc,
	"join":      stdlib.JoinFunc,
	"split":     stdlib.SplitFunc,
	"replace":   stdlib.ReplaceFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"format":    stdlib.FormatFunc,
	"coalesce":  stdlib.CoalesceFunc,
}

// Render evaluates a command template against the context.
func Render(expr hcl.Expression, ctx environment.Context) (string, error) {
	if expr == nil {
		return "", fmt.Errorf("no command")
	}
	evalCtx := ctx.EvalContext()
	evalCtx.Functions = functions

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", fmt.Errorf("command evaluated to null")
	}
	if !val.IsWhollyKnown() {
		return "", fmt.Errorf("command is not fully known")
	}
	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("command must be a string, got %s", val.Type().FriendlyName())
	}
	return str.AsString(), nil
}
