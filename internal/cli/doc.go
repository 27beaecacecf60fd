// Package cli implements the discute command line: serve runs the practice
// server, seed builds the prompt store and programs lists what it holds.
package cli
