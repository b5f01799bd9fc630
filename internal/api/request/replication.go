package request

type RegisterTarget struct {
	Name       string `json:"name" validate:"required,slug"`
	BaseURL    string `json:"base_url" validate:"required,url"`
	Credential string `json:"credential,omitempty"`
}

type UpdateTarget struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
