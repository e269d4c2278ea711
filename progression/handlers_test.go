package progression

import (
	"testing"

	"github.com/forgelabs/ember/command"
	"github.com/forgelabs/ember/dispatch"
)

func TestRegisterHandlers_PurchaseGeneratorReachesCoordinator(t *testing.T) {
	c, _ := newTestCoordinator()
	c.UpdateForStep(1)
	d := dispatch.New()
	RegisterHandlers(d, c)

	res := d.Execute(mustCommand(t, CommandPurchaseGenerator, map[string]any{"id": "miner", "count": float64(2)}), &dispatch.Context{CurrentStep: 1})
	if !res.Success {
		t.Fatalf("expected purchase_generator to reach the coordinator, got %+v", res)
	}
	idx := c.World.Generators.RequireIndex("miner")
	if got := c.World.Generators.Level(idx); got != 2 {
		t.Fatalf("expected generator level 2 after dispatch, got %d", got)
	}
}

func TestRegisterHandlers_PurchaseGeneratorRejectsMissingID(t *testing.T) {
	c, _ := newTestCoordinator()
	d := dispatch.New()
	RegisterHandlers(d, c)

	res := d.Execute(mustCommand(t, CommandPurchaseGenerator, map[string]any{}), &dispatch.Context{CurrentStep: 1})
	if res.Success || res.Err.Code != codeInvalidPayload {
		t.Fatalf("expected invalid payload rejection, got %+v", res)
	}
}

func TestRegisterHandlers_PurchaseUpgradeReachesCoordinator(t *testing.T) {
	c, _ := newTestCoordinator()
	d := dispatch.New()
	RegisterHandlers(d, c)

	res := d.Execute(mustCommand(t, CommandPurchaseUpgrade, map[string]any{"id": "pickaxe"}), &dispatch.Context{CurrentStep: 1})
	if !res.Success {
		t.Fatalf("expected purchase_upgrade to reach the coordinator, got %+v", res)
	}
	idx := c.World.Upgrades.RequireIndex("pickaxe")
	if !c.World.Upgrades.Owned(idx) {
		t.Fatal("expected pickaxe to be owned after dispatch")
	}
}

func TestRegisterHandlers_ApplyPrestigeReachesCoordinator(t *testing.T) {
	c, _ := newTestCoordinator()
	d := dispatch.New()
	RegisterHandlers(d, c)

	payload := map[string]any{"layerId": "ascend", "confirmationToken": "tok1", "nowMs": float64(0)}
	res := d.Execute(mustCommand(t, CommandApplyPrestige, payload), &dispatch.Context{CurrentStep: 1})
	if !res.Success {
		t.Fatalf("expected apply_prestige to reach the coordinator, got %+v", res)
	}

	events := c.drainPendingEvents()
	found := false
	for _, e := range events {
		if e.Type == EventPrestigeApplied && e.ID == "ascend" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected PrestigeApplied event to be pending after dispatch, got %v", events)
	}
}

func mustCommand(t *testing.T, typ string, payload any) *command.Command {
	t.Helper()
	cmd, err := command.New(typ, command.PriorityPlayer, 0, 1, payload, "req-"+typ)
	if err != nil {
		t.Fatalf("unexpected error constructing command: %v", err)
	}
	return cmd
}
