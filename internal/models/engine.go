package models

// EngineResult is the single-line JSON completion signal printed by the
// conversion engine on stdout
type EngineResult struct {
	Success         *bool  `json:"success"`
	Format          string `json:"format,omitempty"`
	OutputFile      string `json:"output_file,omitempty"`
	ImagesExtracted *int   `json:"images_extracted,omitempty"`
	ImagesDirectory string `json:"images_directory,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Succeeded reports whether the engine declared success
func (r *EngineResult) Succeeded() bool {
	return r != nil && r.Success != nil && *r.Success
}
