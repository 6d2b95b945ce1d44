package order

// Destination is where a drive order sends a vehicle and what it does there.
type Destination struct {
	target     Ref
	operation  string
	properties map[string]string
}

// NewDestination accepts only point and location targets.
func NewDestination(target Ref, operation string) (Destination, error) {
	if target.Kind != KindPoint && target.Kind != KindLocation {
		return Destination{}, NewIllegalArgumentError("target", "%s is neither a point nor a location", target)
	}
	if target.Name == "" {
		return Destination{}, NewIllegalArgumentError("target", "name must not be empty")
	}
	if operation == "" {
		operation = OpNop
	}
	return Destination{target: target, operation: operation}, nil
}

func (d Destination) Target() Ref       { return d.target }
func (d Destination) Operation() string { return d.operation }

func (d Destination) Properties() map[string]string { return cloneProps(d.properties) }

func (d Destination) Property(key string) string { return d.properties[key] }

func (d Destination) WithProperties(props map[string]string) Destination {
	d.properties = cloneProps(props)
	return d
}

func (d Destination) WithProperty(key, value string) Destination {
	d.properties = withProp(d.properties, key, value)
	return d
}

// Equal compares target, operation and properties.
func (d Destination) Equal(other Destination) bool {
	if d.target != other.target || d.operation != other.operation || len(d.properties) != len(other.properties) {
		return false
	}
	for k, v := range d.properties {
		if ov, ok := other.properties[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
