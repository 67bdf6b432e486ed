package health

import (
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/yodusanwo/ai-trip-planner/internal/shared/server/respond"
)

// Check reports whether one dependency can serve requests.
type Check func() error

// Status is the health payload.
type Status struct {
	OK      bool              `json:"ok"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Ready   bool              `json:"ready"`
	Checks  map[string]string `json:"checks"`
}

// Service encapsulates health-related checks.
type Service struct {
	name    string
	version string

	mu     sync.RWMutex
	checks map[string]Check
}

// NewService constructs a new health service.
func NewService(name, version string) *Service {
	return &Service{name: name, version: version, checks: map[string]Check{}}
}

// AddCheck registers a readiness check under name.
func (s *Service) AddCheck(name string, check Check) {
	if check == nil {
		return
	}
	s.mu.Lock()
	s.checks[name] = check
	s.mu.Unlock()
}

// Status runs every readiness check. Liveness is always true; Ready is
// false when any check fails.
func (s *Service) Status() Status {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	st := Status{OK: true, Service: s.name, Version: s.version, Ready: true, Checks: map[string]string{}}
	for _, name := range names {
		if err := checks[name](); err != nil {
			st.Ready = false
			st.Checks[name] = err.Error()
			continue
		}
		st.Checks[name] = "ok"
	}
	return st
}

// RegisterRoutes attaches GET /health.
func (s *Service) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, s.Status())
	})
}
