// package zpos persists the last commanded Z height across restarts,
// the one piece of toolhead state that survives the process: a tiny
// JSON file written directly with os.WriteFile, the same
// write-the-whole-file approach the backup package uses for its own
// on-disk artifacts.
package zpos

import (
	"encoding/json"
	"os"
)

// Threshold is how far Z must move before a new value is persisted.
const Threshold = 5.0

type document struct {
	ZPos float64 `json:"z_pos"`
}

// State tracks the last-persisted Z and the file it lives in.
type State struct {
	path string
	last float64
}

// Load reads the persisted Z from path, defaulting to 0 if the file
// does not exist.
func Load(path string) (*State, error) {
	s := &State{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	s.last = doc.ZPos
	return s, nil
}

// Last returns the last value Record persisted (or loaded).
func (s *State) Last() float64 { return s.last }

// Record persists z if it differs from the last recorded value by
// more than Threshold, returning whether it wrote.
func (s *State) Record(z float64) (bool, error) {
	if d := z - s.last; d >= -Threshold && d <= Threshold {
		return false, nil
	}
	data, err := json.Marshal(document{ZPos: z})
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(s.path, data, 0o640); err != nil {
		return false, err
	}
	s.last = z
	return true, nil
}
