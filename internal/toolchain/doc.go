// Package toolchain wraps the external build tools the pipeline drives.
//
// Runner abstracts subprocess execution (ExecRunner is the os/exec
// implementation); Python wraps a resolved interpreter and exposes pip
// and module invocations. All output is captured and logged with a
// bounded tail so failed installs remain diagnosable without flooding
// the console.
package toolchain
