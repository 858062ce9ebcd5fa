package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by the options of every command built on App.
type NamedFlagSetOptions interface {
	// Flags returns the command's flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in defaults derived from other fields. It runs after flags
	// and the config file are applied.
	Complete() error

	// Validate checks the completed options.
	Validate() error
}
