// Command quill is a CLI agent that answers questions and performs
// local work by looping an LLM over a set of built-in tools.
package main

import (
	_ "modernc.org/sqlite"
)

func main() {
	Execute()
}
