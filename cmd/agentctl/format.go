package main

import (
	"encoding/json"
	"io"
)

// printJSON writes v as indented JSON followed by a trailing newline, the
// one output shape every verb uses so scripted callers get a single
// predictable format regardless of which verb produced it.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
