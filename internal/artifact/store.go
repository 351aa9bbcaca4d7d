// Package artifact stores the output of each pipeline stage under a logical
// slot. Stage logic only sees slots; the physical backend (local directory,
// GCS bucket, BigQuery table, memory) is chosen at startup.
package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/finance-report-agent/internal/extract"
)

// ErrMissingArtifact is returned when a slot has never been written or holds
// zero bytes.
var ErrMissingArtifact = errors.New("missing artifact")

// Slot names a stage artifact by role.
type Slot string

const (
	SlotPlan        Slot = "plan"
	SlotCategorized Slot = "categorized"
	SlotKPIs        Slot = "kpis"
	SlotSummary     Slot = "summary"
	SlotReflection  Slot = "reflection"
)

// Slots lists every slot in pipeline order.
var Slots = []Slot{SlotPlan, SlotCategorized, SlotKPIs, SlotSummary, SlotReflection}

// FileName is the object/file name a slot is persisted under.
func (s Slot) FileName() string {
	switch s {
	case SlotSummary, SlotReflection:
		return string(s) + ".txt"
	default:
		return string(s) + ".json"
	}
}

// ParseSlot validates a slot name. Matching ignores case and surrounding
// whitespace.
func ParseSlot(name string) (Slot, error) {
	for _, s := range Slots {
		if string(s) == strings.ToLower(strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown artifact slot %q", name)
}

// Store reads and writes stage artifacts.
type Store interface {
	// Read returns the slot content or ErrMissingArtifact.
	Read(ctx context.Context, slot Slot) ([]byte, error)

	// Write replaces the slot content atomically.
	Write(ctx context.Context, slot Slot, content []byte) error

	// Exists reports whether the slot holds non-empty content.
	Exists(ctx context.Context, slot Slot) (bool, error)
}

// SchemaEnsurer is implemented by backends that need storage provisioned
// before the first write.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// ReadJSON reads a slot and materializes it as T. Artifacts written by older
// runs may still carry prose around the JSON, so the content goes through the
// same extraction as a model reply.
func ReadJSON[T any](ctx context.Context, store Store, slot Slot) (T, error) {
	var zero T

	content, err := store.Read(ctx, slot)
	if err != nil {
		return zero, err
	}

	v, err := extract.Extract[T](string(content))
	if err != nil {
		return zero, fmt.Errorf("ReadJSON: slot %s: %w", slot, err)
	}
	return v, nil
}

// MarshalJSON renders v the way artifacts are stored on disk.
func MarshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
