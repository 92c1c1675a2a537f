package models

// Workspace is the virtual multi-file editing state for one coding question.
// Invariant: Files always holds at least one entry and ActiveFile always names
// one of them. The workspace store is the only writer.
type Workspace struct {
	Language   string            `json:"language"`
	ActiveFile string            `json:"activeFile"`
	Files      map[string]string `json:"files"`
}

// Clone returns a deep copy safe to hand out or serialize outside the store's lock
func (w *Workspace) Clone() *Workspace {
	files := make(map[string]string, len(w.Files))
	for name, content := range w.Files {
		files[name] = content
	}
	return &Workspace{
		Language:   w.Language,
		ActiveFile: w.ActiveFile,
		Files:      files,
	}
}

// FirstFile returns a deterministic file name from the workspace,
// the lexicographically smallest key
func (w *Workspace) FirstFile() string {
	first := ""
	for name := range w.Files {
		if first == "" || name < first {
			first = name
		}
	}
	return first
}

// ExecutionResult is the outcome of one run attempt, latest-wins per question.
// Transport failures are represented here too (Success=false, Error set), never
// as a propagated error.
type ExecutionResult struct {
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// AttachmentSet maps attachment names to raw binary payloads. Encoding for
// transport happens at the runner boundary, not here.
type AttachmentSet map[string][]byte

// Clone returns a deep copy of the attachment set
func (a AttachmentSet) Clone() AttachmentSet {
	if a == nil {
		return nil
	}
	out := make(AttachmentSet, len(a))
	for name, data := range a {
		buf := make([]byte, len(data))
		copy(buf, data)
		out[name] = buf
	}
	return out
}
