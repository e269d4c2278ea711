package progression

import "github.com/forgelabs/ember/dispatch"

// Command type identifiers the handlers registered by RegisterHandlers
// answer to.
const (
	CommandPurchaseGenerator = "PURCHASE_GENERATOR"
	CommandPurchaseUpgrade   = "PURCHASE_UPGRADE"
	CommandApplyPrestige     = "APPLY_PRESTIGE"
)

const codeInvalidPayload = "INVALID_PAYLOAD"

// RegisterHandlers wires coordinator's mutators into dispatcher under
// their command types, completing the data flow from a queued command to
// coordinated state mutation (spec.md §2): the tick loop drains a due
// command, the dispatcher looks it up by type, and the handler here
// invokes the one sanctioned mutator for that effect.
func RegisterHandlers(dispatcher *dispatch.Dispatcher, coordinator *Coordinator) {
	dispatcher.Register(CommandPurchaseGenerator, func(payload any, ctx *dispatch.Context) dispatch.Result {
		fields, ok := payload.(map[string]any)
		if !ok {
			return dispatch.Fail(codeInvalidPayload, "purchase_generator requires an object payload", nil)
		}
		id, ok := fields["id"].(string)
		if !ok || id == "" {
			return dispatch.Fail(codeInvalidPayload, "purchase_generator requires a non-empty id", nil)
		}
		count := payloadUint32(fields["count"], 1)
		return coordinator.ApplyGenerator(id, count)
	})

	dispatcher.Register(CommandPurchaseUpgrade, func(payload any, ctx *dispatch.Context) dispatch.Result {
		fields, ok := payload.(map[string]any)
		if !ok {
			return dispatch.Fail(codeInvalidPayload, "purchase_upgrade requires an object payload", nil)
		}
		id, ok := fields["id"].(string)
		if !ok || id == "" {
			return dispatch.Fail(codeInvalidPayload, "purchase_upgrade requires a non-empty id", nil)
		}
		return coordinator.ApplyUpgrade(id)
	})

	dispatcher.Register(CommandApplyPrestige, func(payload any, ctx *dispatch.Context) dispatch.Result {
		fields, ok := payload.(map[string]any)
		if !ok {
			return dispatch.Fail(codeInvalidPayload, "apply_prestige requires an object payload", nil)
		}
		layerID, _ := fields["layerId"].(string)
		token, _ := fields["confirmationToken"].(string)
		nowMs := payloadInt64(fields["nowMs"], 0)
		return coordinator.ApplyPrestige(layerID, token, nowMs, ctx.CurrentStep)
	})
}

func payloadUint32(v any, def uint32) uint32 {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return uint32(n)
		}
	case int:
		if n > 0 {
			return uint32(n)
		}
	}
	return def
}

func payloadInt64(v any, def int64) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	}
	return def
}
