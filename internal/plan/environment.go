package plan

// Ordered set of environment variables.
//
// Keys keep the position of their first Set; setting a key again replaces
// the value in place. The zero value is empty and ready to use.
type Environment struct {
	keys   []string          // Keys in first-set order.
	values map[string]string // Current value per key.
}

// Sets key to value.
func (e *Environment) Set(key, value string) {
	if e.values == nil {
		e.values = make(map[string]string)
	}
	if _, ok := e.values[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.values[key] = value
}

// Returns the variables as "key=value" strings.
func (e *Environment) List() []string {
	env := make([]string, 0, len(e.keys))
	for _, k := range e.keys {
		env = append(env, k+"="+e.values[k])
	}
	return env
}
