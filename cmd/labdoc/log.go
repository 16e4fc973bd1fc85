package main

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// glogLogger adapts glog to core.Logger. Debug lines need -v 2.
type glogLogger struct{}

func (glogLogger) Debug(msg string, args ...any) {
	if glog.V(2) {
		glog.InfoDepth(1, kv(msg, args))
	}
}

func (glogLogger) Info(msg string, args ...any)  { glog.InfoDepth(1, kv(msg, args)) }
func (glogLogger) Warn(msg string, args ...any)  { glog.WarningDepth(1, kv(msg, args)) }
func (glogLogger) Error(msg string, args ...any) { glog.ErrorDepth(1, kv(msg, args)) }

// kv renders msg followed by key=value pairs.
func kv(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			fmt.Fprintf(&b, " %v", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}
