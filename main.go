// Package main is the entry point for the zipmirror CLI.
package main

import "zipmirror.dev/pkg/zipmirror/cmd"

func main() {
	cmd.Execute()
}
