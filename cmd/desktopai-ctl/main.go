// desktopai-ctl is the operator's command-line client for the
// run-control core's HTTP API: create/plan/run/approve/pause/resume/
// cancel tasks, and start/approve/cancel autonomy runs, against a
// running desktopai-server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

func main() {
	v := viper.New()
	v.SetEnvPrefix("runcontrolctl")
	v.AutomaticEnv()

	if err := NewRootCommand(v).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
