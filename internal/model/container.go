package model

// Container is an app/package together with its version epoch. Every
// element identity is scoped to one container epoch.
type Container struct {
	ID      string `yaml:"id"                json:"id"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
	Epoch   int    `yaml:"epoch"             json:"epoch"`
}
