package main

import "time"

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags shared by client commands.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	Name  string
	Force bool
	API   APIFlags
}

// CreateFlags holds flags for the create command.
type CreateFlags struct {
	Name string
	Cmd  string
	API  APIFlags
}

// NameFlags holds flags for commands addressing one child by name.
type NameFlags struct {
	Name string
	API  APIFlags
}

// ChildrenFlags holds flags for the children command.
type ChildrenFlags struct {
	Refresh   bool
	Uptime    bool
	PM2Status bool
	System    bool
	Logs      bool
	Execution bool
	API       APIFlags
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
}
