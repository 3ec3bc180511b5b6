// Package all registers every built-in agent. Import it for its side effects:
//
//	import _ "github.com/hupe1980/agentgate/agents/all"
package all

import (
	// Built-in agents register themselves in init.
	_ "github.com/hupe1980/agentgate/agents/helloworld"
	_ "github.com/hupe1980/agentgate/agents/passthrough"
	_ "github.com/hupe1980/agentgate/agents/password"
)
