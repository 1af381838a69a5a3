package activity

import "sort"

// Routes maps categories to destination calendars. Unknown categories route
// to the fallback. A Routes value is immutable once built.
type Routes struct {
	byCategory map[string]string
	fallback   string
}

// NewRoutes copies table so later changes to it do not leak in.
func NewRoutes(table map[string]string, fallback string) Routes {
	m := make(map[string]string, len(table))
	for k, v := range table {
		m[k] = v
	}
	return Routes{byCategory: m, fallback: fallback}
}

// Destination returns the calendar for category.
func (r Routes) Destination(category string) string {
	if d, ok := r.byCategory[category]; ok && d != "" {
		return d
	}
	return r.fallback
}

// Fallback returns the calendar used for unmapped categories.
func (r Routes) Fallback() string {
	return r.fallback
}

// Destinations returns every distinct calendar name, fallback included,
// sorted for stable provisioning order.
func (r Routes) Destinations() []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, d := range r.byCategory {
		add(d)
	}
	add(r.fallback)
	sort.Strings(out)
	return out
}

// Aliases maps raw application identifiers (e.g. iOS bundle ids) to the
// names shown in calendar titles.
type Aliases struct {
	pretty map[string]string
}

// NewAliases copies table into an immutable alias set.
func NewAliases(table map[string]string) Aliases {
	m := make(map[string]string, len(table))
	for k, v := range table {
		m[k] = v
	}
	return Aliases{pretty: m}
}

// Display returns the presentation name for app. Empty app names become
// UnknownApp.
func (a Aliases) Display(app string) string {
	if p, ok := a.pretty[app]; ok && p != "" {
		return p
	}
	if app == "" {
		return UnknownApp
	}
	return app
}
