//go:build !devcode

package handler

const devEchoCompiled = false
