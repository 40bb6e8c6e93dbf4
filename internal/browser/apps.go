package browser

import (
	"strings"

	"github.com/v0xg/stepdroid/internal/executor"
)

// AppResolver resolves display names for the browser surface. Registered app
// ids and raw http(s) URLs resolve to themselves; everything else goes
// through the alias table.
type AppResolver struct {
	table executor.AppTable
}

// NewAppResolver copies base and registers every id of apps (id -> URL).
func NewAppResolver(base executor.AppTable, apps map[string]string) *AppResolver {
	t := make(executor.AppTable, len(base)+len(apps))
	for k, v := range base {
		t[k] = v
	}
	for id := range apps {
		t.Add(id)
	}
	return &AppResolver{table: t}
}

func (r *AppResolver) Resolve(name string) (string, bool) {
	if n := strings.TrimSpace(name); isWebURL(n) {
		return n, true
	}
	return r.table.Resolve(name)
}

var _ executor.AppResolver = (*AppResolver)(nil)
