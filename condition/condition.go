// Package condition implements the pure, side-effect-free condition and
// formula evaluators over content-pack expressions (spec.md §4.J).
// Nothing in this package mutates state; it only reads resource/generator/
// upgrade/automation/prestige columns through the Context it is given.
package condition

import (
	"fmt"
	"math"

	"github.com/forgelabs/ember/content"
	"github.com/forgelabs/ember/state"
)

// FlagHook resolves a host-defined flag by name. ok is false when the host
// has no opinion; per spec.md §4.J that absence must fail closed.
type FlagHook func(flag string) (value, ok bool)

// ScriptHook resolves a host-defined scripted predicate by name. Same
// fail-closed contract as FlagHook.
type ScriptHook func(name string, ctx *Context) (value, ok bool)

// Context supplies the entity lookups and host hooks a condition or
// formula node evaluates against.
type Context struct {
	World     *state.World
	Pack      *content.Pack
	Variables map[string]float64
	Flags     FlagHook
	Script    ScriptHook
}

func (c *Context) variable(name string) (float64, bool) {
	v, ok := c.Variables[name]
	return v, ok
}

// Evaluate returns node's boolean value under ctx. Unknown or malformed
// target references resolve to false rather than panicking — only
// construction-time integrity violations (spec.md §4.I) panic.
func Evaluate(node content.ConditionRef, ctx *Context) bool {
	switch node.Kind {
	case "always":
		return true
	case "never":
		return false
	case "resourceThreshold":
		idx, ok := ctx.World.Resources.IndexOf(node.Target)
		if !ok {
			return false
		}
		return ctx.World.Resources.Amount(idx) >= node.Params["threshold"]
	case "generatorLevel":
		idx, ok := ctx.World.Generators.IndexOf(node.Target)
		if !ok {
			return false
		}
		return float64(ctx.World.Generators.Level(idx)) >= node.Params["threshold"]
	case "upgradeOwned":
		idx, ok := ctx.World.Upgrades.IndexOf(node.Target)
		if !ok {
			return false
		}
		return ctx.World.Upgrades.Owned(idx)
	case "prestigeCountThreshold":
		return prestigeCount(ctx, node.Target) >= node.Params["threshold"]
	case "prestigeCompleted":
		return prestigeCount(ctx, node.Target) >= 1
	case "prestigeUnlocked":
		layer, ok := findPrestigeLayer(ctx.Pack, node.Target)
		if !ok {
			return false
		}
		return Evaluate(layer.UnlockCondition, ctx)
	case "flag":
		if ctx.Flags == nil {
			return false
		}
		v, ok := ctx.Flags(node.Flag)
		return ok && v
	case "script":
		if ctx.Script == nil {
			return false
		}
		v, ok := ctx.Script(node.Flag, ctx)
		return ok && v
	case "allOf":
		for _, child := range node.Children {
			if !Evaluate(child, ctx) {
				return false
			}
		}
		return true
	case "anyOf":
		for _, child := range node.Children {
			if Evaluate(child, ctx) {
				return true
			}
		}
		return false
	case "not":
		if len(node.Children) == 0 {
			return true
		}
		return !Evaluate(node.Children[0], ctx)
	default:
		return false
	}
}

// Describe returns a short, stable, human-readable hint explaining why
// node is currently unmet. Callers should only surface it when Evaluate
// returns false; Describe itself does not re-check that invariant.
func Describe(node content.ConditionRef, ctx *Context) string {
	switch node.Kind {
	case "always":
		return ""
	case "never":
		return "never satisfied"
	case "resourceThreshold":
		idx, ok := ctx.World.Resources.IndexOf(node.Target)
		if !ok {
			return fmt.Sprintf("unknown resource %q", node.Target)
		}
		return fmt.Sprintf("needs %s >= %g (has %g)", node.Target, node.Params["threshold"], ctx.World.Resources.Amount(idx))
	case "generatorLevel":
		idx, ok := ctx.World.Generators.IndexOf(node.Target)
		if !ok {
			return fmt.Sprintf("unknown generator %q", node.Target)
		}
		return fmt.Sprintf("needs %s level >= %g (has %d)", node.Target, node.Params["threshold"], ctx.World.Generators.Level(idx))
	case "upgradeOwned":
		return fmt.Sprintf("needs upgrade %q owned", node.Target)
	case "prestigeCountThreshold":
		return fmt.Sprintf("needs %s prestige count >= %g (has %g)", node.Target, node.Params["threshold"], prestigeCount(ctx, node.Target))
	case "prestigeCompleted":
		return fmt.Sprintf("needs %s completed at least once", node.Target)
	case "prestigeUnlocked":
		return fmt.Sprintf("needs %s unlocked", node.Target)
	case "flag":
		return fmt.Sprintf("needs flag %q", node.Flag)
	case "script":
		return fmt.Sprintf("needs script condition %q", node.Flag)
	case "allOf":
		for _, child := range node.Children {
			if !Evaluate(child, ctx) {
				return Describe(child, ctx)
			}
		}
		return ""
	case "anyOf":
		if len(node.Children) == 0 {
			return "no alternatives defined"
		}
		return "needs one of: " + Describe(node.Children[0], ctx)
	case "not":
		if len(node.Children) == 0 {
			return ""
		}
		return "must not: " + Describe(node.Children[0], ctx)
	default:
		return fmt.Sprintf("unknown condition kind %q", node.Kind)
	}
}

func prestigeCount(ctx *Context, layerID string) float64 {
	countID := content.PrestigeCountResourceID(layerID)
	idx, ok := ctx.World.Resources.IndexOf(countID)
	if !ok {
		return 0
	}
	return ctx.World.Resources.Amount(idx)
}

func findPrestigeLayer(pack *content.Pack, id string) (content.PrestigeLayerDef, bool) {
	for _, layer := range pack.Prestige {
		if layer.ID == id {
			return layer, true
		}
	}
	return content.PrestigeLayerDef{}, false
}

// ExpressionHook resolves a host-defined formula expression by source text.
// Same fail-closed contract as FlagHook: absence evaluates to 0.
type ExpressionHook func(expr string, input float64) (value float64, ok bool)

// FormulaContext supplies the host hook formulas of kind "expression" defer
// to.
type FormulaContext struct {
	Expression ExpressionHook
}

// EvaluateFormula computes f's value at input (generally a purchase count
// or level), matching the kinds spec.md §4.J names: constant, linear,
// exponential, polynomial, piecewise, expression.
func EvaluateFormula(f content.FormulaRef, input float64, ctx *FormulaContext) float64 {
	switch f.Kind {
	case "constant":
		return f.Params["value"]
	case "linear":
		return f.Params["base"] + f.Params["rate"]*input
	case "exponential":
		return f.Params["base"] * math.Pow(f.Params["rate"], input)
	case "polynomial":
		// Params carries coefficients as "c0".."cN"; degree is implicit in
		// however many are present.
		sum := 0.0
		power := 1.0
		for i := 0; ; i++ {
			key := fmt.Sprintf("c%d", i)
			coef, ok := f.Params[key]
			if !ok {
				break
			}
			sum += coef * power
			power *= input
		}
		return sum
	case "piecewise":
		// Params carries breakpoint/value pairs as "breakpointN"/"valueN";
		// returns the value for the last breakpoint <= input, or the first
		// value if input precedes every breakpoint.
		return evaluatePiecewise(f, input)
	case "expression":
		if ctx == nil || ctx.Expression == nil {
			return 0
		}
		v, ok := ctx.Expression(f.Expr, input)
		if !ok {
			return 0
		}
		return v
	default:
		return 0
	}
}

func evaluatePiecewise(f content.FormulaRef, input float64) float64 {
	best, bestSet := 0.0, false
	bestBreakpoint := math.Inf(-1)
	firstValue, haveFirst := 0.0, false
	for i := 0; ; i++ {
		bpKey := fmt.Sprintf("breakpoint%d", i)
		valKey := fmt.Sprintf("value%d", i)
		bp, ok := f.Params[bpKey]
		if !ok {
			break
		}
		val := f.Params[valKey]
		if !haveFirst {
			firstValue, haveFirst = val, true
		}
		if bp <= input && bp >= bestBreakpoint {
			best, bestSet, bestBreakpoint = val, true, bp
		}
	}
	if bestSet {
		return best
	}
	return firstValue
}
