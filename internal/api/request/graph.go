package request

type RegisterGraph struct {
	ID         string `json:"id" validate:"required,slug"`
	Name       string `json:"name" validate:"required,max=128"`
	WorkingDir string `json:"working_dir" validate:"required"`
}
