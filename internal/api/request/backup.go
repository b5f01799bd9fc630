package request

type CreateSnapshot struct {
	Labels map[string]string `json:"labels,omitempty" validate:"omitempty,max=16"`
}

type RestoreSnapshot struct {
	// TargetDir overrides the graph's working directory as the restore
	// destination. Empty restores in place.
	TargetDir string `json:"target_dir,omitempty"`
}

type CleanupBackups struct {
	// GraphID limits the sweep to one graph. Empty sweeps all graphs.
	GraphID string `json:"graph_id,omitempty"`
}
