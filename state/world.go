package state

import "github.com/forgelabs/ember/content"

// World is the authoritative, runtime-owned set of columnar stores built
// from a content pack. Only command handlers running under the dispatcher
// mutate it; every other reader holds a snapshot.
type World struct {
	Resources   *ResourceStore
	Generators  *GeneratorStore
	Upgrades    *UpgradeStore
	Automations *AutomationStore
}

// NewWorld constructs a fresh World from pack. Every prestige layer's
// companion count resource must already be present in pack.Resources; a
// missing one is a fatal construction error (spec.md §4.I).
func NewWorld(pack *content.Pack) *World {
	for _, layer := range pack.Prestige {
		countID := content.PrestigeCountResourceID(layer.ID)
		if !pack.HasResource(countID) {
			panic(&FatalError{
				Op:     "construct",
				Detail: "content pack missing prestige count resource " + countID,
			})
		}
	}

	resourceIDs := make([]string, len(pack.Resources))
	start := make(map[string]float64, len(pack.Resources))
	capacities := make(map[string]*float64, len(pack.Resources))
	startUnlocked := make(map[string]bool, len(pack.Resources))
	startVisible := make(map[string]bool, len(pack.Resources))
	for i, r := range pack.Resources {
		resourceIDs[i] = r.ID
		start[r.ID] = r.StartAmount
		capacities[r.ID] = r.Capacity
		startUnlocked[r.ID] = r.StartUnlocked
		startVisible[r.ID] = r.StartVisible
	}

	generatorIDs := make([]string, len(pack.Generators))
	maxLevels := make(map[string]uint32, len(pack.Generators))
	for i, g := range pack.Generators {
		generatorIDs[i] = g.ID
		maxLevels[g.ID] = g.MaxLevel
	}

	upgradeIDs := make([]string, len(pack.Upgrades))
	for i, u := range pack.Upgrades {
		upgradeIDs[i] = u.ID
	}

	automationIDs := make([]string, len(pack.Automations))
	for i, a := range pack.Automations {
		automationIDs[i] = a.ID
	}

	return &World{
		Resources:   NewResourceStore(resourceIDs, start, capacities, startUnlocked, startVisible),
		Generators:  NewGeneratorStore(generatorIDs, maxLevels),
		Upgrades:    NewUpgradeStore(upgradeIDs),
		Automations: NewAutomationStore(automationIDs),
	}
}

// WorldSnapshot bundles one published snapshot per store, produced
// atomically within a single tick step (spec.md §5: "the whole dirty set
// becomes visible as one flip").
type WorldSnapshot struct {
	Resources   ResourceSnapshot
	Generators  GeneratorSnapshot
	Upgrades    UpgradeSnapshot
	Automations AutomationSnapshot
}

// Snapshot publishes every store's dirty columns in one call.
func (w *World) Snapshot() WorldSnapshot {
	return WorldSnapshot{
		Resources:   w.Resources.Snapshot(),
		Generators:  w.Generators.Snapshot(),
		Upgrades:    w.Upgrades.Snapshot(),
		Automations: w.Automations.Snapshot(),
	}
}
