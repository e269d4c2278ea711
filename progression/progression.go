// Package progression implements the progression coordinator: unlock and
// visibility gating, generator/upgrade/prestige evaluators, and the sole
// sanctioned mutators for progression counters (spec.md §4.I). Every
// mutation marks the owning store dirty through its existing setters;
// this package never touches a column array directly.
package progression

import (
	"fmt"

	"github.com/forgelabs/ember/condition"
	"github.com/forgelabs/ember/content"
	"github.com/forgelabs/ember/dispatch"
	"github.com/forgelabs/ember/state"
	"github.com/forgelabs/ember/telemetry"
)

const (
	codeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	codeLocked              = "LOCKED"
	codeUnknownID           = "UNKNOWN_ID"
	codeInvalidConfirmation = "INVALID_CONFIRMATION_TOKEN"
	eventDuplicateToken     = "PrestigeResetDuplicateToken"
)

// FatalError signals a progression integrity violation: reuse of an
// already-consumed prestige confirmation token within its TTL window.
type FatalError struct {
	Op     string
	Detail string
}

func (e *FatalError) Error() string { return "progression: " + e.Op + ": " + e.Detail }

func (e *FatalError) FatalError() bool { return true }

// EventType enumerates the transition events update_for_step emits.
type EventType string

const (
	EventGeneratorUnlocked  EventType = "GeneratorUnlocked"
	EventGeneratorVisible   EventType = "GeneratorVisible"
	EventUpgradeUnlocked    EventType = "UpgradeUnlocked"
	EventAutomationUnlocked EventType = "AutomationUnlocked"
	EventAutomationFired    EventType = "AutomationFired"
	EventPrestigeApplied    EventType = "PrestigeApplied"
)

// Event is one progression transition, emitted in evaluation order.
type Event struct {
	Type EventType
	ID   string
	Step int64
}

// Coordinator evaluates condition gates and runs the sanctioned mutator
// surface for generators, upgrades, and prestige layers.
type Coordinator struct {
	World          *state.World
	Pack           *content.Pack
	FormulaContext *condition.FormulaContext
	Flags          condition.FlagHook
	Script         condition.ScriptHook

	stepSizeMs int64 // converts automation cooldownMs into step counts

	usedTokens        map[string]int64 // confirmation token -> expiry of the duplicate-use window (ms), set once the token is consumed
	upgradeUnlockSeen map[string]bool  // upgrades don't carry an unlocked column; this tracks which have already fired their one-shot unlock event
	pendingEvents     []Event          // events raised by Apply* mutators, drained into the next UpdateForStep call
}

// New constructs a Coordinator over world/pack. stepSizeMs is the tick
// loop's fixed step size, used to convert automation cooldowns (specified
// in milliseconds) into step counts.
func New(world *state.World, pack *content.Pack, formulaCtx *condition.FormulaContext, flags condition.FlagHook, script condition.ScriptHook, stepSizeMs int64) *Coordinator {
	return &Coordinator{
		World:             world,
		Pack:              pack,
		FormulaContext:    formulaCtx,
		Flags:             flags,
		Script:            script,
		stepSizeMs:        stepSizeMs,
		usedTokens:        make(map[string]int64),
		upgradeUnlockSeen: make(map[string]bool),
	}
}

func (c *Coordinator) conditionCtx() *condition.Context {
	return &condition.Context{
		World:  c.World,
		Pack:   c.Pack,
		Flags:  c.Flags,
		Script: c.Script,
	}
}

// UpdateForStep evaluates every condition gate — unlock and visibility for
// generators, unlock for upgrades and automations, unlock and threshold
// firing for automations — toggling booleans and emitting an Event for each transition actually made (no-ops on an
// already-satisfied gate emit nothing). Also drains any events raised by
// Apply* mutators since the last call, so a command executed earlier in
// the same tick surfaces its event through this same step's result.
// Prestige layer unlock is not evaluated here; QuotePrestige and
// ApplyPrestige evaluate it when called.
func (c *Coordinator) UpdateForStep(step int64) []Event {
	ctx := c.conditionCtx()
	events := c.drainPendingEvents()

	for i, g := range c.Pack.Generators {
		if !c.World.Generators.Unlocked(i) && condition.Evaluate(g.UnlockCondition, ctx) {
			c.World.Generators.SetUnlocked(i, true)
			events = append(events, Event{Type: EventGeneratorUnlocked, ID: g.ID, Step: step})
		}
		if !c.World.Generators.Visible(i) && condition.Evaluate(g.VisibilityCondition, ctx) {
			c.World.Generators.SetVisible(i, true)
			events = append(events, Event{Type: EventGeneratorVisible, ID: g.ID, Step: step})
		}
	}

	for _, u := range c.Pack.Upgrades {
		if !c.upgradeUnlockSeen[u.ID] && condition.Evaluate(u.UnlockCondition, ctx) {
			c.upgradeUnlockSeen[u.ID] = true
			events = append(events, Event{Type: EventUpgradeUnlocked, ID: u.ID, Step: step})
		}
	}

	for i, a := range c.Pack.Automations {
		if !c.World.Automations.Unlocked(i) && condition.Evaluate(a.UnlockCondition, ctx) {
			c.World.Automations.SetUnlocked(i, true)
			events = append(events, Event{Type: EventAutomationUnlocked, ID: a.ID, Step: step})
		}
		if !c.World.Automations.Unlocked(i) || !c.World.Automations.Enabled(i) {
			continue
		}
		if step < c.World.Automations.CooldownExpiresStep(i) {
			continue
		}
		satisfied := condition.Evaluate(a.ThresholdCondition, ctx)
		if satisfied != c.World.Automations.LastThresholdSatisfied(i) {
			c.World.Automations.SetLastThresholdSatisfied(i, satisfied)
		}
		if satisfied {
			c.World.Automations.RecordFiring(i, step, step+c.cooldownSteps(a.CooldownMs))
			events = append(events, Event{Type: EventAutomationFired, ID: a.ID, Step: step})
		}
	}

	return events
}

// drainPendingEvents returns and clears events raised by Apply* mutators
// outside of UpdateForStep's own gate evaluation.
func (c *Coordinator) drainPendingEvents() []Event {
	if len(c.pendingEvents) == 0 {
		return nil
	}
	events := c.pendingEvents
	c.pendingEvents = nil
	return events
}

// cooldownSteps converts an automation's millisecond cooldown into a step
// count using the coordinator's configured step size, rounding down but
// never to zero for a positive cooldown.
func (c *Coordinator) cooldownSteps(cooldownMs int64) int64 {
	if cooldownMs <= 0 {
		return 0
	}
	stepSizeMs := c.stepSizeMs
	if stepSizeMs <= 0 {
		stepSizeMs = 1
	}
	steps := cooldownMs / stepSizeMs
	if steps < 1 {
		steps = 1
	}
	return steps
}

// ApplyProduction credits each unlocked, enabled generator's per-step
// output: OutputFormula evaluated over the generator's current level,
// added to OutputResourceID. Generators with no OutputResourceID produce
// nothing.
func (c *Coordinator) ApplyProduction() {
	for i, g := range c.Pack.Generators {
		if g.OutputResourceID == "" {
			continue
		}
		if !c.World.Generators.Unlocked(i) || !c.World.Generators.Enabled(i) {
			continue
		}
		level := c.World.Generators.Level(i)
		if level == 0 {
			continue
		}
		output := condition.EvaluateFormula(g.OutputFormula, float64(level), c.FormulaContext)
		if output == 0 {
			continue
		}
		if idx, ok := c.World.Resources.IndexOf(g.OutputResourceID); ok {
			c.World.Resources.AddAmount(idx, output)
		}
	}
}

// IncrementGeneratorOwned adds delta levels to generator id, the sole
// sanctioned mutator for generator level outside of generatorEvaluator.Apply.
func (c *Coordinator) IncrementGeneratorOwned(id string, delta int32) error {
	idx, ok := c.World.Generators.IndexOf(id)
	if !ok {
		return fmt.Errorf("progression: unknown generator %q", id)
	}
	c.World.Generators.AddLevels(idx, delta)
	return nil
}

// SetGeneratorEnabled toggles a generator's enabled flag.
func (c *Coordinator) SetGeneratorEnabled(id string, enabled bool) error {
	idx, ok := c.World.Generators.IndexOf(id)
	if !ok {
		return fmt.Errorf("progression: unknown generator %q", id)
	}
	c.World.Generators.SetEnabled(idx, enabled)
	return nil
}

// IncrementUpgradePurchases adds 1 to an upgrade's purchase count.
func (c *Coordinator) IncrementUpgradePurchases(id string) error {
	idx, ok := c.World.Upgrades.IndexOf(id)
	if !ok {
		return fmt.Errorf("progression: unknown upgrade %q", id)
	}
	c.World.Upgrades.IncrementPurchases(idx)
	return nil
}

// SetUpgradePurchases sets an upgrade's purchase count directly (used by
// hydrate restoration paths).
func (c *Coordinator) SetUpgradePurchases(id string, n uint32) error {
	idx, ok := c.World.Upgrades.IndexOf(id)
	if !ok {
		return fmt.Errorf("progression: unknown upgrade %q", id)
	}
	c.World.Upgrades.SetPurchases(idx, n)
	return nil
}

// GeneratorQuote is the cost/affordability preview generatorEvaluator.quote
// returns.
type GeneratorQuote struct {
	ResourceID string
	Cost       float64
	Affordable bool
}

// QuoteGenerator computes the cost of purchasing count additional levels
// of generator id via its cost formula, evaluated over the generator's
// current level.
func (c *Coordinator) QuoteGenerator(id string, count uint32) (GeneratorQuote, dispatch.Result) {
	def, ok := findGenerator(c.Pack, id)
	if !ok {
		return GeneratorQuote{}, dispatch.Fail(codeUnknownID, "unknown generator "+id, nil)
	}
	idx, ok := c.World.Generators.IndexOf(id)
	if !ok {
		return GeneratorQuote{}, dispatch.Fail(codeUnknownID, "unknown generator "+id, nil)
	}
	cost := sumFormula(def.CostFormula, float64(c.World.Generators.Level(idx)), count, c.FormulaContext)
	affordable := c.canAfford(def.CostResourceID, cost)
	return GeneratorQuote{ResourceID: def.CostResourceID, Cost: cost, Affordable: affordable}, dispatch.Ok()
}

// ApplyGenerator debits the generator's cost resource and increments its
// level by count, failing with no partial mutation if locked, unknown, or
// unaffordable.
func (c *Coordinator) ApplyGenerator(id string, count uint32) dispatch.Result {
	def, ok := findGenerator(c.Pack, id)
	if !ok {
		return dispatch.Fail(codeUnknownID, "unknown generator "+id, nil)
	}
	idx, ok := c.World.Generators.IndexOf(id)
	if !ok {
		return dispatch.Fail(codeUnknownID, "unknown generator "+id, nil)
	}
	if !c.World.Generators.Unlocked(idx) {
		return dispatch.Fail(codeLocked, "generator "+id+" is locked", nil)
	}
	cost := sumFormula(def.CostFormula, float64(c.World.Generators.Level(idx)), count, c.FormulaContext)
	if !c.canAfford(def.CostResourceID, cost) {
		return dispatch.Fail(codeInsufficientFunds, "cannot afford "+id, nil)
	}
	c.debit(def.CostResourceID, cost)
	c.World.Generators.AddLevels(idx, int32(count))
	c.World.Generators.SetEnabled(idx, true) // owning a generator activates its production
	return dispatch.Ok()
}

// UpgradeQuote is the cost/affordability preview upgradeEvaluator.quote
// returns.
type UpgradeQuote struct {
	ResourceID   string
	Cost         float64
	Affordable   bool
	AlreadyOwned bool
}

// QuoteUpgrade computes the cost to purchase upgrade id's next purchase.
func (c *Coordinator) QuoteUpgrade(id string) (UpgradeQuote, dispatch.Result) {
	def, ok := findUpgrade(c.Pack, id)
	if !ok {
		return UpgradeQuote{}, dispatch.Fail(codeUnknownID, "unknown upgrade "+id, nil)
	}
	idx, ok := c.World.Upgrades.IndexOf(id)
	if !ok {
		return UpgradeQuote{}, dispatch.Fail(codeUnknownID, "unknown upgrade "+id, nil)
	}
	owned := c.World.Upgrades.Owned(idx)
	cost := condition.EvaluateFormula(def.CostFormula, float64(c.World.Upgrades.Purchases(idx)), c.FormulaContext)
	return UpgradeQuote{
		ResourceID:   def.CostResourceID,
		Cost:         cost,
		Affordable:   c.canAfford(def.CostResourceID, cost),
		AlreadyOwned: def.MaxPurchases == 0 && owned,
	}, dispatch.Ok()
}

// ApplyUpgrade purchases one unit of upgrade id. Single-purchase upgrades
// (MaxPurchases == 0) refuse when already owned.
func (c *Coordinator) ApplyUpgrade(id string) dispatch.Result {
	def, ok := findUpgrade(c.Pack, id)
	if !ok {
		return dispatch.Fail(codeUnknownID, "unknown upgrade "+id, nil)
	}
	idx, ok := c.World.Upgrades.IndexOf(id)
	if !ok {
		return dispatch.Fail(codeUnknownID, "unknown upgrade "+id, nil)
	}
	if def.MaxPurchases == 0 && c.World.Upgrades.Owned(idx) {
		return dispatch.Fail(codeLocked, "upgrade "+id+" already owned", nil)
	}
	if def.MaxPurchases > 0 && c.World.Upgrades.Purchases(idx) >= def.MaxPurchases {
		return dispatch.Fail(codeLocked, "upgrade "+id+" at max purchases", nil)
	}
	cost := condition.EvaluateFormula(def.CostFormula, float64(c.World.Upgrades.Purchases(idx)), c.FormulaContext)
	if !c.canAfford(def.CostResourceID, cost) {
		return dispatch.Fail(codeInsufficientFunds, "cannot afford "+id, nil)
	}
	c.debit(def.CostResourceID, cost)
	c.World.Upgrades.IncrementPurchases(idx)
	return dispatch.Ok()
}

// PrestigeStatus is the status enum prestigeEvaluator.quote reports.
type PrestigeStatus string

const (
	PrestigeLocked    PrestigeStatus = "locked"
	PrestigeAvailable PrestigeStatus = "available"
	PrestigeCompleted PrestigeStatus = "completed"
)

// PrestigeQuote previews a prestige layer's status and reward.
type PrestigeQuote struct {
	Status PrestigeStatus
	Reward float64
}

// QuotePrestige reports layerId's current status and reward preview,
// computed from the pre-reset state.
func (c *Coordinator) QuotePrestige(layerID string) (PrestigeQuote, dispatch.Result) {
	layer, ok := findPrestigeLayer(c.Pack, layerID)
	if !ok {
		return PrestigeQuote{}, dispatch.Fail(codeUnknownID, "unknown prestige layer "+layerID, nil)
	}
	ctx := c.conditionCtx()
	unlocked := condition.Evaluate(layer.UnlockCondition, ctx)
	reward := condition.EvaluateFormula(layer.RewardFormula, c.prestigeCount(layerID), c.FormulaContext)
	status := PrestigeLocked
	if unlocked {
		status = PrestigeAvailable
	}
	return PrestigeQuote{Status: status, Reward: reward}, dispatch.Ok()
}

// confirmationTTLMs is the duration a consumed prestige confirmation
// token is remembered for, during which reusing it is rejected as a
// duplicate rather than treated as fresh.
const confirmationTTLMs = 60_000

// ApplyPrestige applies layerId's prestige reset/reward. confirmationToken
// is itself the single-use gate: the token must be non-empty, and a
// prestige apply succeeds the first time any given token string is
// presented. Presenting the same token again within confirmationTTLMs of
// that success is a fatal integrity violation — per spec.md §8 Scenario
// 6, a client that retries a prestige apply must mint a new token, never
// resend the old one. After the TTL window elapses the token is forgotten
// and reusable again.
func (c *Coordinator) ApplyPrestige(layerID, confirmationToken string, nowMs, step int64) dispatch.Result {
	if confirmationToken == "" {
		return dispatch.Fail(codeInvalidConfirmation, "confirmation token required", nil)
	}
	if expiry, consumed := c.usedTokens[confirmationToken]; consumed && nowMs <= expiry {
		telemetry.Default().RecordWarning(eventDuplicateToken, map[string]any{
			"layerId": layerID,
			"token":   confirmationToken,
		})
		panic(&FatalError{Op: "apply_prestige", Detail: "Confirmation token has already been used"})
	}

	layer, ok := findPrestigeLayer(c.Pack, layerID)
	if !ok {
		return dispatch.Fail(codeUnknownID, "unknown prestige layer "+layerID, nil)
	}
	ctx := c.conditionCtx()
	if !condition.Evaluate(layer.UnlockCondition, ctx) {
		return dispatch.Fail(codeLocked, "prestige layer "+layerID+" is locked", nil)
	}

	reward := condition.EvaluateFormula(layer.RewardFormula, c.prestigeCount(layerID), c.FormulaContext)
	retain := toSet(layer.RetainTargets)

	for _, target := range layer.ResetTargets {
		if retain[target] {
			continue
		}
		if idx, ok := c.World.Resources.IndexOf(target); ok {
			c.World.Resources.SetAmount(idx, 0)
			continue
		}
		if idx, ok := c.World.Generators.IndexOf(target); ok {
			c.World.Generators.ResetLevel(idx)
			continue
		}
		if idx, ok := c.World.Upgrades.IndexOf(target); ok {
			c.World.Upgrades.SetPurchases(idx, 0)
			continue
		}
	}

	countID := content.PrestigeCountResourceID(layerID)
	if idx, ok := c.World.Resources.IndexOf(countID); ok {
		c.World.Resources.AddAmount(idx, 1)
	}

	if idx, ok := c.World.Resources.IndexOf(layer.RewardResourceID); ok {
		c.World.Resources.AddAmount(idx, reward)
	}

	c.usedTokens[confirmationToken] = nowMs + confirmationTTLMs
	c.pendingEvents = append(c.pendingEvents, Event{Type: EventPrestigeApplied, ID: layerID, Step: step})
	return dispatch.Ok()
}

func (c *Coordinator) prestigeCount(layerID string) float64 {
	countID := content.PrestigeCountResourceID(layerID)
	idx, ok := c.World.Resources.IndexOf(countID)
	if !ok {
		return 0
	}
	return c.World.Resources.Amount(idx)
}

func (c *Coordinator) canAfford(resourceID string, cost float64) bool {
	idx, ok := c.World.Resources.IndexOf(resourceID)
	if !ok {
		return false
	}
	return c.World.Resources.Amount(idx) >= cost
}

func (c *Coordinator) debit(resourceID string, cost float64) {
	idx, ok := c.World.Resources.IndexOf(resourceID)
	if !ok {
		return
	}
	c.World.Resources.AddAmount(idx, -cost)
}

// sumFormula sums a cost formula across count successive purchases
// starting at currentLevel, the standard idle-game "buy N" cost curve.
func sumFormula(f content.FormulaRef, currentLevel float64, count uint32, ctx *condition.FormulaContext) float64 {
	total := 0.0
	for i := uint32(0); i < count; i++ {
		total += condition.EvaluateFormula(f, currentLevel+float64(i), ctx)
	}
	return total
}

func findGenerator(pack *content.Pack, id string) (content.GeneratorDef, bool) {
	for _, g := range pack.Generators {
		if g.ID == id {
			return g, true
		}
	}
	return content.GeneratorDef{}, false
}

func findUpgrade(pack *content.Pack, id string) (content.UpgradeDef, bool) {
	for _, u := range pack.Upgrades {
		if u.ID == id {
			return u, true
		}
	}
	return content.UpgradeDef{}, false
}

func findPrestigeLayer(pack *content.Pack, id string) (content.PrestigeLayerDef, bool) {
	for _, layer := range pack.Prestige {
		if layer.ID == id {
			return layer, true
		}
	}
	return content.PrestigeLayerDef{}, false
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
