// Package health agrega el estado de las dependencias para /readyz.
package health

import (
	"context"
	"sort"
	"time"
)

// Pinger es cualquier dependencia con chequeo de salud (store, cache).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Component es el estado de una dependencia.
type Component struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok | down
	Error  string `json:"error,omitempty"`
}

// Response es el cuerpo de /readyz.
type Response struct {
	Status     string      `json:"status"` // ready | unavailable
	Version    string      `json:"version,omitempty"`
	Providers  []string    `json:"providers"`
	Components []Component `json:"components"`
}

type Service interface {
	Check(ctx context.Context) Response
}

type service struct {
	version   string
	providers []string
	deps      map[string]Pinger
	order     []string
}

// NewService chequea deps por nombre, en orden alfabético.
func NewService(version string, providers []string, deps map[string]Pinger) Service {
	s := &service{version: version, providers: providers, deps: deps}
	for name := range deps {
		s.order = append(s.order, name)
	}
	sort.Strings(s.order)
	return s
}

func (s *service) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp := Response{Status: "ready", Version: s.version, Providers: s.providers}
	if resp.Providers == nil {
		resp.Providers = []string{}
	}
	for _, name := range s.order {
		c := Component{Name: name, Status: "ok"}
		if err := s.deps[name].Ping(ctx); err != nil {
			c.Status = "down"
			c.Error = err.Error()
			resp.Status = "unavailable"
		}
		resp.Components = append(resp.Components, c)
	}
	return resp
}
