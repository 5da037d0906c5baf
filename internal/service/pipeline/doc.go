// Package pipeline runs the whole download, verify, publish and install
// sequence once.
//
// Stages run strictly in order and the first failure aborts the run. The
// working directory lives only for the duration of Run and is removed on
// every exit path, including cancellation by a signal.
package pipeline
