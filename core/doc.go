// Package core provides the foundational domain types shared by every layer
// of agentgate. It defines:
//
//   - Content / Part (role based conversation segments)
//   - Conversation (the per-request context rebuilt from the wire history)
//   - Event (the closed set of generation events an agent emits)
//   - Agent / Constructor (the plugin contract)
//   - Error taxonomy shared by registry, dispatch and the HTTP layer
//
// The package keeps transport, provider and registry concerns out of scope so
// plugins can depend on it without pulling in the server.
package core
