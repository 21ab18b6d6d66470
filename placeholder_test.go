package hxbind

import (
	"bytes"
	"context"
	"testing"
)

func TestPlaceholder(t *testing.T) {
	s := NewSession("p")
	defer s.Close()

	tests := []struct {
		name     string
		binding  string
		renderer string
		opts     Options
		want     string
	}{
		{
			"plain",
			"chart", "bars", nil,
			`<div id="hxbind-chart" data-hxbind-output="chart" data-hxbind-renderer="bars"></div>`,
		},
		{
			"sized",
			"sized", "bars", Options{OptWidth: 640, OptHeight: 480},
			`<div id="hxbind-sized" data-hxbind-output="sized" data-hxbind-renderer="bars" style="width:640px;height:480px"></div>`,
		},
		{
			"escaped",
			`x"y`, "<script>", nil,
			`<div id="hxbind-x&#34;y" data-hxbind-output="x&#34;y" data-hxbind-renderer="&lt;script&gt;"></div>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := s.RegisterOutput(tt.binding, tt.renderer, tt.opts)
			if err != nil {
				t.Fatalf("RegisterOutput() error = %v", err)
			}
			var buf bytes.Buffer
			if err := b.Placeholder().Render(context.Background(), &buf); err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Placeholder() =\n%s\nwant\n%s", buf.String(), tt.want)
			}
		})
	}
}
