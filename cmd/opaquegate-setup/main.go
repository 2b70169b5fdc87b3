// Command opaquegate-setup generates a fresh server setup secret and
// prints it as base64. Run it once per deployment and hand the output to
// Builder.WithSetup; every node of a deployment must share the same
// secret or registered envelopes become unusable.
package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/opaquegate/opaquegate/pake/gopaquengine"
)

func main() {
	engine := gopaquengine.New(gopaquengine.Config{})
	setup, err := engine.CreateSetup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "opaquegate-setup: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(base64.StdEncoding.EncodeToString(setup))
}
