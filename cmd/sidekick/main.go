// Command sidekick is the headless terminal front end: ask questions by text
// or microphone, and inspect the conversation, notes, settings and books
// shared with the desktop app.
//
// Usage:
//
//	sidekick ask "who is Long John Silver"
//	sidekick ask --voice
//	sidekick history list --filter notes
//	sidekick settings set silent=true
package main

import (
	"fmt"
	"os"
)

func main() {
	s := &session{}
	err := newRootCmd(s).Execute()
	if cerr := s.close(); cerr != nil {
		fmt.Fprintln(os.Stderr, "Error:", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
