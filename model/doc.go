// Package model defines the provider-agnostic abstractions for talking to
// language models inside agentgate.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, core.FunctionCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic, Gemini) live in sub packages and implement
// Model so agents and flows stay decoupled from vendor SDKs.
package model
