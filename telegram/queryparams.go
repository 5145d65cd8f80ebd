// Copyright (c) 2025 @AmarnathCJD

package telegram

// QueryParam filters decoded callback parameters. A callback route with
// filters matches when at least one of them does.
type QueryParam interface {
	Matches(params map[string]string) bool
}

type existParam struct{ key string }

func (p existParam) Matches(params map[string]string) bool {
	_, ok := params[p.key]
	return ok
}

// Exist matches when key is present, whatever its value.
func Exist(key string) QueryParam { return existParam{key: key} }

type valueParam struct {
	key   string
	check func(string) bool
}

func (p valueParam) Matches(params map[string]string) bool {
	v, ok := params[p.key]
	return ok && p.check(v)
}

// Value matches when key is present and equals want.
func Value(key, want string) QueryParam {
	return valueParam{key: key, check: func(v string) bool { return v == want }}
}

// ValueFunc matches when key is present and fn accepts its value.
func ValueFunc(key string, fn func(string) bool) QueryParam {
	return valueParam{key: key, check: fn}
}
