//go:build devcode

package handler

// devEchoCompiled は開発用コードエコーがビルドに含まれているかどうか。
const devEchoCompiled = true
