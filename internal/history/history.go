// Package history implements the per-phase operation log (C10, spec
// §4.10): an append-only JSON array at "<phase>_log.json", grounded on
// _examples/original_source/src/planning/operation_history.rs's
// OperationHistoryItem/OperationHistoryKind, write and read_or_default.
package history

import (
	"encoding/json"
	"os"
	"time"

	"github.com/makerpnp/planner/internal/perr"
	"github.com/makerpnp/planner/internal/planning"
)

// OperationKind tags one history entry's shape.
type OperationKind string

const (
	KindLoadPcbs                 OperationKind = "load_pcbs"
	KindAutomatedPnp              OperationKind = "automated_pnp"
	KindReflowComponents          OperationKind = "reflow_components"
	KindManuallySolderComponents OperationKind = "manually_solder_components"
	KindPlacementOperation       OperationKind = "placement_operation"
)

// PlacementOperation is the operation applied to a single placement by a
// RecordPlacementsOperation command. "Placed" is its only member today
// (grounded on placement.rs's PlacementOperation enum, which has one
// variant; kept as an extension point per spec §9).
type PlacementOperation string

const PlacementOperationPlaced PlacementOperation = "placed"

// Entry is one recorded operation (spec §4.10: date_time, phase,
// operation). Completed is set only for Kind == KindLoadPcbs; ObjectPath
// and Placement are set only for Kind == KindPlacementOperation.
type Entry struct {
	DateTime  time.Time          `json:"date_time"`
	Phase     planning.Reference `json:"phase"`
	Kind      OperationKind      `json:"operation"`
	Completed *bool              `json:"completed,omitempty"`
	ObjectPath string            `json:"object_path,omitempty"`
	Placement PlacementOperation `json:"placement_operation,omitempty"`
}

// LoadPcbsEntry builds a LoadPcbs history entry (spec §4.8
// RecordPhaseOperation only ever sets completed=true, since Completed is
// currently the only supported ProcessOperationSetItem).
func LoadPcbsEntry(phase planning.Reference, now time.Time) Entry {
	completed := true
	return Entry{DateTime: now, Phase: phase, Kind: KindLoadPcbs, Completed: &completed}
}

// OperationEntry builds a bare operation-kind history entry for operations
// that carry no extra payload (AutomatedPnp, ReflowComponents,
// ManuallySolderComponents).
func OperationEntry(phase planning.Reference, op planning.OperationKind, now time.Time) Entry {
	var kind OperationKind
	switch op {
	case planning.OpAutomatedPnp:
		kind = KindAutomatedPnp
	case planning.OpReflowComponents:
		kind = KindReflowComponents
	case planning.OpManuallySolderComponents:
		kind = KindManuallySolderComponents
	case planning.OpLoadPcbs:
		return LoadPcbsEntry(phase, now)
	}
	return Entry{DateTime: now, Phase: phase, Kind: kind}
}

// PlacementEntry builds a PlacementOperation history entry (spec §4.8
// RecordPlacementsOperation).
func PlacementEntry(phase planning.Reference, objectPath string, op PlacementOperation, now time.Time) Entry {
	return Entry{DateTime: now, Phase: phase, Kind: KindPlacementOperation, ObjectPath: objectPath, Placement: op}
}

// ReadOrDefault reads the entries at path, returning an empty slice if the
// file does not exist (grounded on operation_history.rs's
// read_or_default).
func ReadOrDefault(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.IO(path, err)
	}
	defer f.Close()

	var entries []Entry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, perr.Parse(path, err)
	}
	return entries, nil
}

// Append reads the existing log at path, appends entry, and writes the
// whole array back with four-space indentation and a trailing newline
// (grounded on operation_history.rs's write). It reports whether the file
// was newly created, for the caller to log a "Created"/"Updated" trace
// event (spec §4.10).
func Append(path string, entry Entry) (created bool, err error) {
	entries, err := ReadOrDefault(path)
	if err != nil {
		return false, err
	}

	_, statErr := os.Stat(path)
	created = os.IsNotExist(statErr)

	entries = append(entries, entry)

	f, err := os.Create(path)
	if err != nil {
		return false, perr.IO(path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	if err := enc.Encode(entries); err != nil {
		return false, perr.IO(path, err)
	}

	return created, nil
}
