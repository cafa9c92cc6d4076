// Package main is the entry point for fleetcheck, the deployment validation
// and remediation harness for the PAGI fleet.
package main

func main() {
	Execute()
}
