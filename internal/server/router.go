package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/pmbridge/internal/group"
)

// Router provides embeddable HTTP handlers over one supervised group.
// Endpoints:
//
//	GET  {basePath}/list                            short name -> status (fresh resync)
//	GET  {basePath}/status    query: name=...&force=true
//	POST {basePath}/create    body: {"name": "...", "command": ["prog", "arg", ...]}
//	POST {basePath}/start     query: name=...
//	POST {basePath}/stop      query: name=...
//	POST {basePath}/remove    query: name=...
//	GET  {basePath}/children  query: refresh=&uptime=&pm2_status=&system=&logs=&execution=
//	GET  {basePath}/process   query: name=<full pm2 name> (diagnostic, bypasses the cache)
//
// Expected operational failures surface as {"ok": false}, not HTTP errors;
// only malformed requests get a 4xx.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	grp      *group.Group
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/list, /api/status, ...
func NewRouter(grp *group.Group, basePath string) *Router {
	return &Router{grp: grp, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	grp := g.Group(r.basePath)
	grp.GET("/list", r.handleList)
	grp.GET("/status", r.handleStatus)
	grp.POST("/create", r.handleCreate)
	grp.POST("/start", r.handleStart)
	grp.POST("/stop", r.handleStop)
	grp.POST("/remove", r.handleRemove)
	grp.GET("/children", r.handleChildren)
	grp.GET("/process", r.handleProcess)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The caller shuts it down via http.Server's Close.
func NewServer(addr, basePath string, grp *group.Group) (*http.Server, error) {
	r := NewRouter(grp, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type statusResp struct {
	Name   string   `json:"name"`
	Status []string `json:"status"`
}

type createReq struct {
	Name    string   `json:"name"`
	Command []string `json:"command"`
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.grp.List())
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	force := c.Query("force") == "true"
	sts := r.grp.Status(name, force)
	out := statusResp{Name: name, Status: make([]string, 0, len(sts))}
	for _, s := range sts {
		out.Status = append(out.Status, string(s))
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleCreate(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name required"})
		return
	}
	if !isSafeName(req.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	if len(req.Command) == 0 {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "command required"})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: r.grp.Create(req.Name, req.Command)})
}

func (r *Router) handleStart(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: r.grp.Start(name)})
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: r.grp.Stop(name)})
}

func (r *Router) handleRemove(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: r.grp.Remove(name)})
}

func (r *Router) handleChildren(c *gin.Context) {
	refresh := c.Query("refresh") == "true"
	fields := group.Fields{
		Uptime:    c.Query("uptime") == "true",
		PM2Status: c.Query("pm2_status") == "true",
		System:    c.Query("system") == "true",
		Logs:      c.Query("logs") == "true",
		Execution: c.Query("execution") == "true",
	}
	writeJSON(c, http.StatusOK, r.grp.ChildrenData(refresh, fields))
}

func (r *Router) handleProcess(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name query param required"})
		return
	}
	rec, ok := r.grp.ProcessInformation(name)
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "process not found: " + name})
		return
	}
	writeJSON(c, http.StatusOK, rec)
}
