package subscriber

// Binding declares how one method of a subscriber type is delivered.
type Binding struct {
	// Method is the exported method name.
	Method string `yaml:"method" json:"method"`

	// Mode selects the delivery context. Default: Posting.
	Mode ThreadMode `yaml:"mode" json:"mode"`

	// Priority orders delivery among handlers of the same event type.
	// Higher values are delivered first. Default: 0.
	Priority int `yaml:"priority" json:"priority"`

	// Sticky requests the cached sticky event on registration.
	Sticky bool `yaml:"sticky" json:"sticky"`
}

// Binder is implemented by subscriber types that declare their handlers
// explicitly instead of relying on the method name prefix.
//
// Bindings is called on a zero value of the subscriber type and must not
// depend on instance state.
type Binder interface {
	Bindings() []Binding
}
