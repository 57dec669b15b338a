package taskfile

import "encoding/json"

// Decode parses a TaskFile document. Callers that need the parse-is-fatal
// semantics of §7's ParseError should wrap the error themselves with the
// source path, as internal/store does.
func Decode(data []byte) (*TaskFile, error) {
	var tf TaskFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, err
	}
	if tf.Tasks == nil {
		tf.Tasks = []TaskRecord{}
	}
	return &tf, nil
}

// Encode serializes a TaskFile with stable, human-diffable formatting.
func Encode(tf *TaskFile) ([]byte, error) {
	return json.MarshalIndent(tf, "", "  ")
}
