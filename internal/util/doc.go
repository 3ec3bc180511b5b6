// Package util holds small internal helpers shared by the tool, agent and
// model packages: JSON schema creation/validation and prompt templating.
package util
