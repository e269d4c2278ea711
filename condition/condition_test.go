package condition

import (
	"testing"

	"github.com/forgelabs/ember/content"
	"github.com/forgelabs/ember/state"
)

func newTestContext() (*Context, *state.World) {
	pack := &content.Pack{
		ID:      "test",
		Version: "1",
		Resources: []content.ResourceDef{
			{ID: "gold", StartAmount: 5},
			{ID: "ascend-prestige-count", StartAmount: 0},
		},
		Generators: []content.GeneratorDef{{ID: "miner"}},
		Upgrades:   []content.UpgradeDef{{ID: "pickaxe"}},
		Prestige: []content.PrestigeLayerDef{
			{ID: "ascend", UnlockCondition: content.ConditionRef{Kind: "always"}},
		},
	}
	w := state.NewWorld(pack)
	return &Context{World: w, Pack: pack}, w
}

func TestEvaluate_AlwaysAndNever(t *testing.T) {
	ctx, _ := newTestContext()
	if !Evaluate(content.ConditionRef{Kind: "always"}, ctx) {
		t.Fatal("expected always to be true")
	}
	if Evaluate(content.ConditionRef{Kind: "never"}, ctx) {
		t.Fatal("expected never to be false")
	}
}

func TestEvaluate_ResourceThreshold(t *testing.T) {
	ctx, _ := newTestContext()
	node := content.ConditionRef{Kind: "resourceThreshold", Target: "gold", Params: map[string]float64{"threshold": 5}}
	if !Evaluate(node, ctx) {
		t.Fatal("expected threshold met at exactly 5")
	}
	node.Params["threshold"] = 6
	if Evaluate(node, ctx) {
		t.Fatal("expected threshold unmet at 5 < 6")
	}
}

func TestEvaluate_UnknownTargetFailsClosed(t *testing.T) {
	ctx, _ := newTestContext()
	node := content.ConditionRef{Kind: "resourceThreshold", Target: "does-not-exist", Params: map[string]float64{"threshold": 0}}
	if Evaluate(node, ctx) {
		t.Fatal("expected unknown resource target to fail closed")
	}
}

func TestEvaluate_GeneratorLevelAndUpgradeOwned(t *testing.T) {
	ctx, w := newTestContext()
	miner := w.Generators.RequireIndex("miner")
	w.Generators.AddLevels(miner, 3)

	node := content.ConditionRef{Kind: "generatorLevel", Target: "miner", Params: map[string]float64{"threshold": 3}}
	if !Evaluate(node, ctx) {
		t.Fatal("expected generator level threshold met")
	}

	pickaxe := w.Upgrades.RequireIndex("pickaxe")
	owned := content.ConditionRef{Kind: "upgradeOwned", Target: "pickaxe"}
	if Evaluate(owned, ctx) {
		t.Fatal("expected upgrade to start unowned")
	}
	w.Upgrades.IncrementPurchases(pickaxe)
	if !Evaluate(owned, ctx) {
		t.Fatal("expected upgrade owned after purchase")
	}
}

func TestEvaluate_PrestigeCountAndCompleted(t *testing.T) {
	ctx, w := newTestContext()
	countIdx := w.Resources.RequireIndex("ascend-prestige-count")

	completed := content.ConditionRef{Kind: "prestigeCompleted", Target: "ascend"}
	if Evaluate(completed, ctx) {
		t.Fatal("expected prestige not completed initially")
	}
	w.Resources.SetAmount(countIdx, 1)
	if !Evaluate(completed, ctx) {
		t.Fatal("expected prestige completed after count reaches 1")
	}

	threshold := content.ConditionRef{Kind: "prestigeCountThreshold", Target: "ascend", Params: map[string]float64{"threshold": 2}}
	if Evaluate(threshold, ctx) {
		t.Fatal("expected threshold 2 unmet at count 1")
	}
}

func TestEvaluate_PrestigeUnlockedDelegatesToLayer(t *testing.T) {
	ctx, _ := newTestContext()
	node := content.ConditionRef{Kind: "prestigeUnlocked", Target: "ascend"}
	if !Evaluate(node, ctx) {
		t.Fatal("expected prestigeUnlocked to delegate to the layer's always-true unlock condition")
	}
	node.Target = "missing-layer"
	if Evaluate(node, ctx) {
		t.Fatal("expected missing layer to fail closed")
	}
}

func TestEvaluate_FlagFailsClosedWithoutHook(t *testing.T) {
	ctx, _ := newTestContext()
	node := content.ConditionRef{Kind: "flag", Flag: "debugMode"}
	if Evaluate(node, ctx) {
		t.Fatal("expected flag condition to fail closed with no hook installed")
	}
	ctx.Flags = func(flag string) (bool, bool) {
		return flag == "debugMode", true
	}
	if !Evaluate(node, ctx) {
		t.Fatal("expected flag condition true once hook resolves it")
	}
}

func TestEvaluate_ScriptFailsClosedWithoutHook(t *testing.T) {
	ctx, _ := newTestContext()
	node := content.ConditionRef{Kind: "script", Flag: "customCheck"}
	if Evaluate(node, ctx) {
		t.Fatal("expected script condition to fail closed with no hook installed")
	}
}

func TestEvaluate_AllOfAnyOfNot(t *testing.T) {
	ctx, _ := newTestContext()
	yes := content.ConditionRef{Kind: "always"}
	no := content.ConditionRef{Kind: "never"}

	if !Evaluate(content.ConditionRef{Kind: "allOf", Children: []content.ConditionRef{yes, yes}}, ctx) {
		t.Fatal("expected allOf true when all children true")
	}
	if Evaluate(content.ConditionRef{Kind: "allOf", Children: []content.ConditionRef{yes, no}}, ctx) {
		t.Fatal("expected allOf false when one child false")
	}
	if !Evaluate(content.ConditionRef{Kind: "anyOf", Children: []content.ConditionRef{no, yes}}, ctx) {
		t.Fatal("expected anyOf true when one child true")
	}
	if Evaluate(content.ConditionRef{Kind: "anyOf", Children: []content.ConditionRef{no, no}}, ctx) {
		t.Fatal("expected anyOf false when all children false")
	}
	if Evaluate(content.ConditionRef{Kind: "not", Children: []content.ConditionRef{yes}}, ctx) {
		t.Fatal("expected not(always) to be false")
	}
}

func TestEvaluate_UnknownKindFailsClosed(t *testing.T) {
	ctx, _ := newTestContext()
	if Evaluate(content.ConditionRef{Kind: "bogus"}, ctx) {
		t.Fatal("expected unknown condition kind to fail closed")
	}
}

func TestEvaluateFormula_Constant(t *testing.T) {
	f := content.FormulaRef{Kind: "constant", Params: map[string]float64{"value": 42}}
	if got := EvaluateFormula(f, 10, nil); got != 42 {
		t.Fatalf("expected constant 42, got %v", got)
	}
}

func TestEvaluateFormula_Linear(t *testing.T) {
	f := content.FormulaRef{Kind: "linear", Params: map[string]float64{"base": 10, "rate": 2}}
	if got := EvaluateFormula(f, 5, nil); got != 20 {
		t.Fatalf("expected 10 + 2*5 = 20, got %v", got)
	}
}

func TestEvaluateFormula_Exponential(t *testing.T) {
	f := content.FormulaRef{Kind: "exponential", Params: map[string]float64{"base": 2, "rate": 3}}
	if got := EvaluateFormula(f, 2, nil); got != 18 {
		t.Fatalf("expected 2*3^2 = 18, got %v", got)
	}
}

func TestEvaluateFormula_Polynomial(t *testing.T) {
	f := content.FormulaRef{Kind: "polynomial", Params: map[string]float64{"c0": 1, "c1": 2, "c2": 3}}
	// 1 + 2*x + 3*x^2 at x=2 => 1 + 4 + 12 = 17
	if got := EvaluateFormula(f, 2, nil); got != 17 {
		t.Fatalf("expected 17, got %v", got)
	}
}

func TestEvaluateFormula_Piecewise(t *testing.T) {
	f := content.FormulaRef{Kind: "piecewise", Params: map[string]float64{
		"breakpoint0": 0, "value0": 1,
		"breakpoint1": 10, "value1": 5,
		"breakpoint2": 20, "value2": 9,
	}}
	if got := EvaluateFormula(f, 15, nil); got != 5 {
		t.Fatalf("expected value for last breakpoint <= 15 (5), got %v", got)
	}
	if got := EvaluateFormula(f, -5, nil); got != 1 {
		t.Fatalf("expected first value when input precedes every breakpoint, got %v", got)
	}
}

func TestEvaluateFormula_ExpressionFailsClosedWithoutHook(t *testing.T) {
	f := content.FormulaRef{Kind: "expression", Expr: "x*2"}
	if got := EvaluateFormula(f, 10, nil); got != 0 {
		t.Fatalf("expected 0 with no expression hook, got %v", got)
	}
	fc := &FormulaContext{Expression: func(expr string, input float64) (float64, bool) {
		return input * 2, true
	}}
	if got := EvaluateFormula(f, 10, fc); got != 20 {
		t.Fatalf("expected expression hook result 20, got %v", got)
	}
}

func TestDescribe_ReturnsEmptyForAlways(t *testing.T) {
	ctx, _ := newTestContext()
	if got := Describe(content.ConditionRef{Kind: "always"}, ctx); got != "" {
		t.Fatalf("expected empty description for always, got %q", got)
	}
}

func TestDescribe_ResourceThresholdMentionsTarget(t *testing.T) {
	ctx, _ := newTestContext()
	node := content.ConditionRef{Kind: "resourceThreshold", Target: "gold", Params: map[string]float64{"threshold": 100}}
	got := Describe(node, ctx)
	if got == "" {
		t.Fatal("expected non-empty description")
	}
}
