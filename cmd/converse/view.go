package main

import (
	"fmt"
	"io"

	"github.com/vango-go/vai-converse/pkg/render"
	converse "github.com/vango-go/vai-converse/sdk"
)

// view prints transcript lines as they arrive. The welcome turn can be
// inserted ahead of turns already printed; it is shown when it arrives.
type view struct {
	renderer *render.Renderer
	out      io.Writer

	header  bool
	printed map[string]bool
	status  string
}

func (v *view) update(s converse.Snapshot) {
	if v.printed == nil {
		v.printed = make(map[string]bool)
	}
	if !v.header && s.Session.AgentName != "" {
		v.header = true
		v.renderer.Header(s.Session)
	}
	for _, t := range s.Turns {
		if v.printed[t.ID] {
			continue
		}
		v.printed[t.ID] = true
		v.renderer.Turn(t, s.Session)
	}

	// The level meter changes every frame; only redraw on state changes.
	s.Level = 0
	if status := v.renderer.Status(s); status != v.status {
		v.status = status
		if status != "" {
			fmt.Fprintln(v.out, status)
		}
	}
}
