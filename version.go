package main

import (
	"fmt"
	"runtime"

	"github.com/webrip/webrip/internal/version"
)

// printVersion 输出注入的版本、提交信息与 Go 运行时版本。
func printVersion() {
	fmt.Fprintf(stdOut, "%s %s/%s %s\n", version.Full(), runtime.GOOS, runtime.GOARCH, runtime.Version())
}
