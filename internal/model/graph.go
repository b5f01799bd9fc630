package model

import "time"

// Graph maps a graph identifier to its on-disk working directory. The
// subsystem never inspects the tree's contents beyond copying and hashing.
type Graph struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	WorkingDir string    `json:"working_dir"`
	CreatedAt  time.Time `json:"created_at"`
}
