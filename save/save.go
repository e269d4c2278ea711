// Package save implements serialize/hydrate for the canonical save format
// (spec.md §4.L): deep key-sorted JSON, a content digest guarding against
// save/content-pack mismatches, and v0→v1 automation-field migration.
package save

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/forgelabs/ember/content"
	"github.com/forgelabs/ember/queue"
	"github.com/forgelabs/ember/state"
)

// CurrentVersion is the save format version this package emits.
const CurrentVersion = 1

// Archiver ships a finished save blob to an external object-storage
// backend. An optional host-wired collaborator — Serialize/Hydrate never
// call it. Package archive/s3archive provides a reference implementation.
type Archiver interface {
	Archive(ctx context.Context, runID string, blob []byte) error
}

// FatalError signals a hydrate integrity violation: version too new,
// content digest mismatch, or a step regression.
type FatalError struct {
	Op     string
	Detail string
}

func (e *FatalError) Error() string { return "save: " + e.Op + ": " + e.Detail }

func (e *FatalError) FatalError() bool { return true }

// Format is the canonical v1 save shape.
type Format struct {
	Version       int                    `json:"version"`
	ContentDigest string                 `json:"contentDigest"`
	Step          int64                  `json:"step"`
	RNGSeed       int64                  `json:"rngSeed"`
	Resources     []state.ResourceSave   `json:"resources"`
	Generators    []state.GeneratorSave  `json:"generators"`
	Upgrades      []state.UpgradeSave    `json:"upgrades"`
	Automations   []state.AutomationSave `json:"automations"`
	Queue         []queue.SavedEntry     `json:"queue"`
}

// legacyV0 is the pre-v1 shape: automations were a flat enabled-only map
// rather than a module with cooldown/threshold bookkeeping.
type legacyV0 struct {
	Version     int                   `json:"version"`
	Step        int64                 `json:"step"`
	RNGSeed     int64                 `json:"rngSeed"`
	Resources   []state.ResourceSave  `json:"resources"`
	Generators  []state.GeneratorSave `json:"generators"`
	Upgrades    []state.UpgradeSave   `json:"upgrades"`
	Automations map[string]bool       `json:"automations"`
}

// ContentDigest computes the guarding digest over pack's sorted module
// identifiers using FNV-1a, a non-cryptographic, dependency-free hash.
func ContentDigest(pack *content.Pack) string {
	h := fnv.New64a()
	for _, id := range pack.ModuleIDs() {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Serialize emits the canonical v1 save for world/pack at step with the
// given rngSeed and queue contents, as deep key-sorted JSON.
func Serialize(world *state.World, pack *content.Pack, step, rngSeed int64, q *queue.Queue) ([]byte, error) {
	format := Format{
		Version:       CurrentVersion,
		ContentDigest: ContentDigest(pack),
		Step:          step,
		RNGSeed:       rngSeed,
		Resources:     world.Resources.ExportForSave(),
		Generators:    world.Generators.ExportForSave(),
		Upgrades:      world.Upgrades.ExportForSave(),
		Automations:   world.Automations.ExportForSave(),
		Queue:         q.ExportForSave(),
	}
	raw, err := json.Marshal(format)
	if err != nil {
		return nil, fmt.Errorf("save: serialize: %w", err)
	}
	return canonicalize(raw)
}

// Hydrate restores world/queue from data, validating version and content
// digest, clearing the queue before reloading it, and returning the
// restored step/rngSeed for the caller to apply to its tick loop and RNG
// source. currentStep is the runtime's already-running step; hydrating
// from an earlier step is a fatal integrity violation.
func Hydrate(data []byte, world *state.World, pack *content.Pack, q *queue.Queue, currentStep int64) (step, rngSeed int64, err error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, 0, fmt.Errorf("save: hydrate: %w", err)
	}

	var format Format
	legacy := probe.Version == 0
	switch {
	case legacy:
		format, err = migrateV0(data)
		if err != nil {
			return 0, 0, err
		}
	case probe.Version == CurrentVersion:
		if err := json.Unmarshal(data, &format); err != nil {
			return 0, 0, fmt.Errorf("save: hydrate: %w", err)
		}
	default:
		panic(&FatalError{Op: "hydrate", Detail: fmt.Sprintf("unsupported save version %d", probe.Version)})
	}

	// v0 saves predate the content digest field entirely; nothing to check
	// them against, so the guard only applies from v1 onward.
	if !legacy && format.ContentDigest != ContentDigest(pack) {
		panic(&FatalError{Op: "hydrate", Detail: "content digest mismatch"})
	}
	if format.Step < currentStep {
		panic(&FatalError{Op: "hydrate", Detail: "cannot hydrate from a step earlier than the running runtime"})
	}

	q.Clear()
	world.Resources.ImportFromSave(format.Resources)
	world.Generators.ImportFromSave(format.Generators)
	world.Upgrades.ImportFromSave(format.Upgrades)
	world.Automations.ImportFromSave(format.Automations)
	q.ImportFromSave(format.Queue)

	return format.Step, format.RNGSeed, nil
}

func migrateV0(data []byte) (Format, error) {
	var legacy legacyV0
	if err := json.Unmarshal(data, &legacy); err != nil {
		return Format{}, fmt.Errorf("save: migrate v0: %w", err)
	}
	automations := make([]state.AutomationSave, 0, len(legacy.Automations))
	for id, enabled := range legacy.Automations {
		automations = append(automations, state.AutomationSave{
			ID:            id,
			Enabled:       enabled,
			LastFiredStep: -1,
		})
	}
	sort.Slice(automations, func(i, j int) bool { return automations[i].ID < automations[j].ID })
	return Format{
		Version:     0,
		Step:        legacy.Step,
		RNGSeed:     legacy.RNGSeed,
		Resources:   legacy.Resources,
		Generators:  legacy.Generators,
		Upgrades:    legacy.Upgrades,
		Automations: automations,
	}, nil
}

// canonicalize re-marshals raw with object keys sorted at every nesting
// level, so byte-identical saves from content-identical state are
// reproducible regardless of struct field order.
func canonicalize(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case float64:
		if val == 0 && math.Signbit(val) {
			val = 0 // normalizes -0 to 0
		}
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	default:
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	}
}
