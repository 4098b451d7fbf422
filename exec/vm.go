// Package exec runs a compiled query script against a KV transaction,
// bridging the typed dataflow graph (ir), the runtime value model
// (vmvalue) and a concrete key-value position (pathwalker) into the
// executor spec.md §4.5 describes as component C8.
package exec

import (
	"github.com/muskanmahajan37/RefineDB/ir"
	"github.com/muskanmahajan37/RefineDB/kv"
	"github.com/muskanmahajan37/RefineDB/logging"
	"github.com/muskanmahajan37/RefineDB/pathwalker"
	"github.com/muskanmahajan37/RefineDB/schema"
	"github.com/muskanmahajan37/RefineDB/storageplan"
)

// VM bundles what an Executor needs to run a script: the schema it was
// typechecked against, the storage plan mapping its field paths to KV
// prefixes, the script itself, the KV store it runs against, and the
// logger for retry events. A VM is immutable
// and safe to share across concurrent Executor.Execute calls — all
// mutable state for a single run lives in the per-call run/frame pair
// the executor constructs fresh each attempt.
type VM struct {
	Schema *schema.CompiledSchema
	Plan   *storageplan.Plan
	Script *ir.Script
	Store  kv.Store
	Log    logging.Logger
}

// NewVM constructs a VM, defaulting Log to a no-op logger if nil.
func NewVM(sch *schema.CompiledSchema, plan *storageplan.Plan, script *ir.Script, store kv.Store, log logging.Logger) *VM {
	if log == nil {
		log = logging.NewNoOpLogger()
	}
	return &VM{Schema: sch, Plan: plan, Script: script, Store: store, Log: log}
}

// Root positions a Walker at one of the plan's named exports, the
// entry point for any script graph that reads or writes resident data.
func (vm *VM) Root(export string) (*pathwalker.Walker, error) {
	return pathwalker.Root(vm.Plan, export)
}
