package enginecmd

import (
	"context"
	"fmt"
	"runtime"

	"go.ntppool.org/common/version"
)

type VersionCmd struct{}

func (cmd *VersionCmd) Run(ctx context.Context) error {
	fmt.Printf("providerd %s (%s)\n", version.Version(), runtime.Version())
	return nil
}
