package client

import (
	"encoding/json"
	"fmt"
	"os"
)

// loadSnapshot reads a JSON config snapshot (knowledge base, agent or
// communication) from disk. The server is stateless about these configs,
// so every request carries the full snapshot.
func loadSnapshot(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("snapshot file %s is not valid JSON", path)
	}
	return json.RawMessage(data), nil
}

// printData pretty-prints the data portion of an API response.
func printData(data json.RawMessage) error {
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		fmt.Println(string(data))
		return nil
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
