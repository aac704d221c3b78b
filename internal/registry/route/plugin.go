package route

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chirino/collection-service/internal/prompt"
	"github.com/chirino/collection-service/internal/service"
	"github.com/gin-gonic/gin"
)

// Deps is what API routes are mounted with once the store is open.
// Management loaders receive nil.
type Deps struct {
	Services *service.Services
	Prompts  *prompt.Manager
	Auth     gin.HandlerFunc
}

// RouterLoader mounts a plugin's routes on the gin engine.
type RouterLoader func(r *gin.Engine, deps *Deps) error

// RouteType distinguishes which server a plugin's routes belong to.
type RouteType int

const (
	// RouteTypeMain registers authenticated /v1 routes on the API server.
	RouteTypeMain RouteType = iota
	// RouteTypeManagement registers routes on the management server (health, metrics).
	// When no dedicated management port is configured, these are mounted on the main server.
	RouteTypeManagement
)

// Plugin is a route package. Order fixes the mount sequence.
type Plugin struct {
	Name   string
	Order  int
	Type   RouteType
	Loader RouterLoader
}

var (
	mu      sync.Mutex
	plugins []Plugin
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	mu.Lock()
	defer mu.Unlock()
	plugins = append(plugins, p)
}

func ofType(t RouteType) []Plugin {
	mu.Lock()
	defer mu.Unlock()
	var out []Plugin
	for _, p := range plugins {
		if p.Type == t {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Names returns the names of the registered plugins of type t in mount order.
func Names(t RouteType) []string {
	var names []string
	for _, p := range ofType(t) {
		names = append(names, p.Name)
	}
	return names
}

// MountMain mounts every RouteTypeMain plugin on r.
func MountMain(r *gin.Engine, deps *Deps) error {
	return mount(r, RouteTypeMain, deps)
}

// MountManagement mounts every RouteTypeManagement plugin on r.
func MountManagement(r *gin.Engine) error {
	return mount(r, RouteTypeManagement, nil)
}

func mount(r *gin.Engine, t RouteType, deps *Deps) error {
	for _, p := range ofType(t) {
		if err := p.Loader(r, deps); err != nil {
			return fmt.Errorf("mount %s routes: %w", p.Name, err)
		}
	}
	return nil
}
