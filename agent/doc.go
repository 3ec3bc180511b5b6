// Package agent contains the agent implementations plugins are built from.
//
//  1. ModelAgent drives a language model through the flow package, with
//     optional tools and a static or templated system instruction.
//  2. ScriptedAgent replays a fixed token sequence without any backend.
//  3. SequentialAgent chains per-request agents so the answer of one step
//     becomes the user message of the next.
//
// Every agent is single-use: it is created by a core.Constructor for one
// request and Run exactly once.
package agent
