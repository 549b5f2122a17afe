package api

// PluginConfig names a registered plugin and the options it is set up with.
// Order within a project's plugin list is the order of the transform chain.
type PluginConfig struct {
	// Name is the registry identifier (e.g. "markdown", "list").
	Name string `yaml:"name" json:"name"`
	// Options are passed verbatim to the plugin factory.
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
}
