package main

import (
	"context"
	"duo-lab/contract"
	"fmt"

	"github.com/gookit/color"
)

var (
	title  = color.New(color.BgBlack, color.FgGreen)
	alert  = color.New(color.FgRed, color.OpBold)
	notice = color.New(color.FgCyan)
	muted  = color.New(color.FgGray)
)

// console shows notifications and alerts on the terminal.
// Notifications are always permitted here, and the app counts as hidden while watching
// so that incoming messages get printed.
type console struct {
	watching bool
}

func newConsole(watching bool) *console {
	return &console{watching: watching}
}

func (c *console) Permission() contract.Permission {
	return contract.PermissionGranted
}

func (c *console) RequestPermission(context.Context) (contract.Permission, error) {
	return contract.PermissionGranted, nil
}

func (c *console) Visible() bool {
	return !c.watching
}

func (c *console) Show(heading, body, _ string) error {
	fmt.Printf("%s %s\n", notice.Render(heading+":"), body)
	return nil
}

func (c *console) Alert(message string) {
	fmt.Println(alert.Render(message))
}
