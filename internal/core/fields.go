package core

// fields.go implements the field accumulator: pure helpers that fold
// repeated keys into ordered collections. The same shape is used for
// scalar fields (string values) and file artifacts.

// addField folds value into m under key. A first occurrence stores the
// scalar directly; a second promotes it to an ordered []string preserving
// arrival order.
func addField(m map[string]any, key, value string) {
	switch existing := m[key].(type) {
	case nil:
		m[key] = value
	case string:
		m[key] = []string{existing, value}
	case []string:
		m[key] = append(existing, value)
	}
}

// addFile folds an artifact into m under its field name, with the same
// scalar-then-slice promotion as addField.
func addFile(m map[string]any, key string, artifact *FileArtifact) {
	switch existing := m[key].(type) {
	case nil:
		m[key] = artifact
	case *FileArtifact:
		m[key] = []*FileArtifact{existing, artifact}
	case []*FileArtifact:
		m[key] = append(existing, artifact)
	}
}
