// Package testutil contains helpers shared by package tests: a fluent builder
// for event sequences and stub agents that replay them.
package testutil
