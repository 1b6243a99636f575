package config

import (
	"github.com/arthur-debert/linkdrive/pkg/paths"
	"github.com/arthur-debert/linkdrive/pkg/types"
)

// DefaultLinks returns the stock managed links: the models directory and
// the hub directory. The design generalizes to N links; these two are
// what a fresh configuration starts with.
func DefaultLinks() ([]types.ManagedLink, error) {
	models, err := paths.ExpandHome("~/.lmstudio/models")
	if err != nil {
		return nil, err
	}
	hub, err := paths.ExpandHome("~/.lmstudio/hub")
	if err != nil {
		return nil, err
	}

	return []types.ManagedLink{
		{Name: "models", LocalPath: models, DriveSubpath: "linkdrive/models"},
		{Name: "hub", LocalPath: hub, DriveSubpath: "linkdrive/hub"},
	}, nil
}
