package main

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
)

// command implements the CLI operations. Runtime operations always go
// through the daemon's HTTP API so there is exactly one group cache.
type command struct{}

func (command) List(api APIFlags) error {
	client := NewAPIClient(api.URL, api.Timeout)
	statuses, err := client.List()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(statuses))
	for n := range statuses {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Printf("%-30s %s\n", n, statuses[n])
	}
	return nil
}

func (command) Status(flags StatusFlags) error {
	client := NewAPIClient(flags.API.URL, flags.API.Timeout)
	sts, err := client.Status(flags.Name, flags.Force)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", flags.Name, strings.Join(sts, ", "))
	return nil
}

func (command) Create(flags CreateFlags) error {
	argv := strings.Split(flags.Cmd, " ")
	client := NewAPIClient(flags.API.URL, flags.API.Timeout)
	ok, err := client.Create(flags.Name, argv)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("create %s did not succeed", flags.Name)
	}
	fmt.Printf("created and started %s\n", flags.Name)
	return nil
}

func (command) Start(flags NameFlags) error {
	client := NewAPIClient(flags.API.URL, flags.API.Timeout)
	ok, err := client.Start(flags.Name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("start %s did not succeed", flags.Name)
	}
	fmt.Printf("started %s\n", flags.Name)
	return nil
}

func (command) Stop(flags NameFlags) error {
	client := NewAPIClient(flags.API.URL, flags.API.Timeout)
	ok, err := client.Stop(flags.Name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("stop %s did not succeed", flags.Name)
	}
	fmt.Printf("stopped %s\n", flags.Name)
	return nil
}

func (command) Remove(flags NameFlags) error {
	client := NewAPIClient(flags.API.URL, flags.API.Timeout)
	ok, err := client.Remove(flags.Name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("remove %s did not succeed", flags.Name)
	}
	fmt.Printf("removed %s\n", flags.Name)
	return nil
}

func (command) Children(flags ChildrenFlags) error {
	q := url.Values{}
	setBool := func(k string, v bool) {
		if v {
			q.Set(k, "true")
		}
	}
	setBool("refresh", flags.Refresh)
	setBool("uptime", flags.Uptime)
	setBool("pm2_status", flags.PM2Status)
	setBool("system", flags.System)
	setBool("logs", flags.Logs)
	setBool("execution", flags.Execution)

	client := NewAPIClient(flags.API.URL, flags.API.Timeout)
	children, err := client.Children(q)
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, children)
}
