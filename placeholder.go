package hxbind

import (
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// ContainerID returns the DOM id of the container element for a binding name.
func ContainerID(name string) string {
	return "hxbind-" + name
}

// Placeholder returns the container element a page declares for this output.
//
// The client render host finds surfaces by the data-hxbind-output attribute
// and mounts them under the binding's name:
//
//	@chart.Placeholder()
func (b *Binding) Placeholder() templ.Component {
	return Placeholder(b.name, b.renderer, b.options)
}

// Placeholder returns the container element for an output that has no
// session yet, such as on the page that will create one.
func Placeholder(name, renderer string, opts Options) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var sb strings.Builder
		sb.WriteString(`<div id="`)
		sb.WriteString(html.EscapeString(ContainerID(name)))
		sb.WriteString(`" data-hxbind-output="`)
		sb.WriteString(html.EscapeString(name))
		sb.WriteString(`" data-hxbind-renderer="`)
		sb.WriteString(html.EscapeString(renderer))
		sb.WriteString(`"`)

		width, height := intOption(opts, OptWidth), intOption(opts, OptHeight)
		if width > 0 || height > 0 {
			var style []string
			if width > 0 {
				style = append(style, fmt.Sprintf("width:%dpx", width))
			}
			if height > 0 {
				style = append(style, fmt.Sprintf("height:%dpx", height))
			}
			sb.WriteString(` style="`)
			sb.WriteString(strings.Join(style, ";"))
			sb.WriteString(`"`)
		}
		sb.WriteString(`></div>`)

		_, err := io.WriteString(w, sb.String())
		return err
	})
}
