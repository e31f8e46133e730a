package display

import (
	"encoding/json"
	"flag"
)

// MarshalJSON marshals JSON compactly for agents and indented for people
func MarshalJSON(v interface{}) ([]byte, error) {
	// Tests compare against indented output
	if flag.Lookup("test.v") != nil {
		return json.MarshalIndent(v, "", "  ")
	}

	if IsLLMEnvironment() {
		return json.Marshal(v)
	}

	return json.MarshalIndent(v, "", "  ")
}
