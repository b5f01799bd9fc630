package request

type CreateCheckpoint struct {
	GraphIDs    []string `json:"graph_ids" validate:"required,min=1,dive,required"`
	Description string   `json:"description,omitempty" validate:"max=512"`
}
