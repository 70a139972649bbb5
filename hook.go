// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package audlangsql

// AugmentationHook is C8: a pluggable callback surface invoked while the
// emitter assembles SQL text, letting a caller graft vendor-specific
// fragments (optimizer hints, row-level security predicates, extra join
// conditions) onto the generated statement without forking the emitter
// itself (spec §4.8).
//
// Every method except SelectJoinType receives the sqlBuffer positioned at
// the point the hook may append to, plus enough context to decide what (if
// anything) to write. A
// hook that appends nothing is a no-op; AugmentationHook implementations
// must never remove or rewrite anything the emitter already wrote.
type AugmentationHook interface {
	// ScriptStart runs once, before anything else is emitted.
	ScriptStart(buf *sqlBuffer, plan *Plan)
	// ScriptEnd runs once, after the statement is otherwise complete.
	ScriptEnd(buf *sqlBuffer, plan *Plan)
	// BeforeMainSelect runs immediately before the outermost SELECT.
	BeforeMainSelect(buf *sqlBuffer, plan *Plan)
	// AfterWithBodySelect runs after each WITH-clause member's SELECT body
	// (union combinations, universe union), identified by alias/table name.
	AfterWithBodySelect(buf *sqlBuffer, name string)
	// SelectJoinType lets a hook override the planner's join-type decision
	// for one join; returning ok=false keeps the planner's choice.
	SelectJoinType(join JoinSpec) (jt JoinType, ok bool)
	// BeforeOn/AfterOn bracket one join's ON clause.
	BeforeOn(buf *sqlBuffer, join JoinSpec)
	AfterOn(buf *sqlBuffer, join JoinSpec)
}

// NoopHook implements AugmentationHook with every callback a no-op. It is
// the default when no hook is configured (spec §4.8).
type NoopHook struct{}

func (NoopHook) ScriptStart(*sqlBuffer, *Plan)        {}
func (NoopHook) ScriptEnd(*sqlBuffer, *Plan)          {}
func (NoopHook) BeforeMainSelect(*sqlBuffer, *Plan)   {}
func (NoopHook) AfterWithBodySelect(*sqlBuffer, string) {}
func (NoopHook) SelectJoinType(JoinSpec) (JoinType, bool) { return InnerJoin, false }
func (NoopHook) BeforeOn(*sqlBuffer, JoinSpec)        {}
func (NoopHook) AfterOn(*sqlBuffer, JoinSpec)         {}
