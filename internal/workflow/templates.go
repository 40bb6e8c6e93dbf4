package workflow

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"
)

//go:embed templates/*.yaml
var templateFS embed.FS

var (
	templatesOnce sync.Once
	templates     []*Workflow
	templatesErr  error
)

func loadTemplates() ([]*Workflow, error) {
	templatesOnce.Do(func() {
		names, err := fs.Glob(templateFS, "templates/*.yaml")
		if err != nil {
			templatesErr = err
			return
		}
		sort.Strings(names)
		for _, name := range names {
			data, err := templateFS.ReadFile(name)
			if err != nil {
				templatesErr = fmt.Errorf("read template %s: %w", name, err)
				return
			}
			wf, err := Decode(data)
			if err != nil {
				templatesErr = fmt.Errorf("template %s: %w", name, err)
				return
			}
			templates = append(templates, wf)
		}
	})
	return templates, templatesErr
}

// Templates returns the built-in templates ordered by id. Callers must not
// modify them; use Instantiate for an editable copy.
func Templates() []*Workflow {
	ts, err := loadTemplates()
	if err != nil {
		panic(err)
	}
	return ts
}

// TemplateByID finds a built-in template.
func TemplateByID(id string) (*Workflow, bool) {
	for _, t := range Templates() {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// TemplatesByCategory returns the templates in category (exact match).
func TemplatesByCategory(category string) []*Workflow {
	var out []*Workflow
	for _, t := range Templates() {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// SearchTemplates returns templates with a tag containing tag, ignoring case.
func SearchTemplates(tag string) []*Workflow {
	tag = strings.ToLower(tag)
	var out []*Workflow
	for _, t := range Templates() {
		for _, have := range t.Tags {
			if strings.Contains(strings.ToLower(have), tag) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// Instantiate returns a deep copy of the template id, safe to edit and run.
func Instantiate(id string) (*Workflow, error) {
	t, ok := TemplateByID(id)
	if !ok {
		return nil, fmt.Errorf("unknown template %q", id)
	}
	return t.Clone(), nil
}

// Clone deep-copies a workflow.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Tags = append([]string(nil), w.Tags...)
	c.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		if s.Enabled != nil {
			v := *s.Enabled
			s.Enabled = &v
		}
		if s.Condition != nil {
			cond := *s.Condition
			if cond.ExpectedValue != nil {
				v := *cond.ExpectedValue
				cond.ExpectedValue = &v
			}
			if cond.Timeout != nil {
				v := *cond.Timeout
				cond.Timeout = &v
			}
			if cond.RetryDelay != nil {
				v := *cond.RetryDelay
				cond.RetryDelay = &v
			}
			s.Condition = &cond
		}
		c.Steps[i] = s
	}
	return &c
}
