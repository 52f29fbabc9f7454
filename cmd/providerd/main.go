package main

import (
	rootcmd "go.lipi.dev/providerd/cmd"
	"go.lipi.dev/providerd/enginecmd"
)

func main() {
	rootcmd.Run(&enginecmd.Cmd{}, "providerd", "Provider selection and failover daemon")
}
